package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"otpmail/backend/internal/config"
	"otpmail/backend/internal/logger"
	"otpmail/backend/internal/mailsync"
)

// main 订阅一个一次性邮箱并在终端打印到达的验证码。
func main() {
	serverURL := flag.String("server", "http://localhost:8080", "API server base URL")
	address := flag.String("address", "", "email address to watch (required)")
	flag.Parse()

	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: mailwatch -address <email> [-server <url>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDevelopment()

	syncer, err := mailsync.New(mailsync.Options{
		ServerURL:       *serverURL,
		RefreshInterval: cfg.Sync.RefreshInterval,
		ReconnectDelay:  cfg.Sync.ReconnectDelay,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create syncer: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go syncer.Run(ctx)
	syncer.SetAddress(*address)

	fmt.Printf("watching %s (polling every %s)\n", *address, cfg.Sync.RefreshInterval)

	// 轮询本地视图，打印新到的邮件和最新验证码
	seen := make(map[string]bool)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nbye")
			return
		case <-ticker.C:
			for _, msg := range syncer.Messages() {
				if seen[msg.ID] {
					continue
				}
				seen[msg.ID] = true
				fmt.Printf("[%s] %s: %s\n",
					msg.ReceivedAt.Local().Format("15:04:05"),
					msg.SenderName,
					msg.Subject,
				)
			}
			if code, ok := syncer.LatestCode(); ok {
				fmt.Printf("\rlatest code: %s (status: %s)  ", code, syncer.Status())
			}
		}
	}
}
