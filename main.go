package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netsync/server"
	"netsync/sim"
)

// NetSync 入口：启动 HTTP + WebSocket 服务，并运行默认房间的网络同步模拟
func main() {
	var (
		addr       string
		configPath string
		logPath    string
		traceDir   string
		debug      bool
	)
	flag.StringVar(&addr, "addr", ":8080", "server listen address, e.g. :8080")
	flag.StringVar(&configPath, "config", "configs/arena.yaml", "room configuration (yaml)")
	flag.StringVar(&logPath, "log", "app.log", "log file path")
	flag.StringVar(&traceDir, "trace", "", "directory for zstd-compressed tick status traces (empty disables)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	// 使用第三方 zap 日志库写入 app.log（带滚动）
	if err := server.InitLogger(logPath, debug); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	cfg, err := server.LoadConfig(configPath)
	if errors.Is(err, os.ErrNotExist) {
		server.Log.Warnw("config not found, using defaults", "path", configPath)
		cfg = server.DefaultConfig()
	} else if err != nil {
		server.Log.Fatalw("load config", "path", configPath, "err", err)
	}
	if traceDir != "" {
		cfg.TraceDir = traceDir
	}

	rm := server.NewRoomManager(cfg, sim.SystemClock{})
	// 先预创建一个默认房间，便于快速试跑
	if _, err := rm.GetOrCreateRoom(server.DefaultRoomID); err != nil {
		server.Log.Fatalw("create room", "err", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rm.HandleWS)
	// 管理与监控接口
	mux.HandleFunc("/admin/config", rm.HandleAdminConfig)
	mux.HandleFunc("/metrics", rm.HandleMetrics)
	mux.HandleFunc("/render", rm.HandleRender)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		server.Log.Infof("NetSync listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnw("http shutdown", "err", err)
	}
	rm.Close()
}
