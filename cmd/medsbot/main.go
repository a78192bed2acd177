package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/talkincode/medsbot/config"
	"github.com/talkincode/medsbot/internal/adminapi"
	"github.com/talkincode/medsbot/internal/app"
	"github.com/talkincode/medsbot/internal/bot"
	"github.com/talkincode/medsbot/internal/webserver"
	"github.com/talkincode/medsbot/internal/whatsapp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	h        = flag.Bool("h", false, "help usage")
	conffile = flag.String("c", "medsbot.yml", "config yaml file")
	envfile  = flag.String("env", ".env", "dotenv file loaded before the config")
	initdb   = flag.Bool("initdb", false, "create database tables and exit")
	runOnce  = flag.Bool("run-once", false, "run one reminder cycle and exit")
)

func main() {
	flag.Parse()
	if *h {
		flag.Usage()
		return
	}

	if err := godotenv.Load(*envfile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envfile, err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	application := app.NewApplication(cfg)
	if err := application.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer application.Release()

	if *initdb {
		if err := application.MigrateDB(true); err != nil {
			zap.L().Fatal("database migration failed", zap.Error(err))
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *runOnce {
		res, err := application.RunRemindersNow(ctx)
		zap.L().Info("reminder cycle finished", zap.Int("fired", res.Fired()), zap.Error(err))
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, application); err != nil {
		zap.L().Error("medsbot stopped with error", zap.Error(err))
		application.Release()
		os.Exit(1)
	}
	zap.L().Info("medsbot stopped")
}

func run(ctx context.Context, application *app.Application) error {
	cfg := application.Config()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Bot.Enabled {
		if len(cfg.Bot.AllowedUsers) == 0 {
			zap.L().Warn("bot allow-list is empty, every chat command will be refused")
		}
		router := bot.NewRouter(application.Ledger(), bot.Options{
			AllowedUsers: cfg.Bot.AllowedUsers,
			LogFile:      cfg.Logger.Filename,
			Location:     application.Location(),
			HorizonDays:  cfg.Reminder.HorizonDays,
		})
		svc, err := whatsapp.New(ctx, cfg.BotStoreFile(), cfg.Bot.PrintQR, router)
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()
		application.AttachMessenger(svc)
		g.Go(func() error {
			return svc.Start(ctx)
		})
	} else {
		zap.L().Info("chat bot disabled, reminders are written to the log")
	}

	if err := application.StartBackgroundJobs(ctx); err != nil {
		return err
	}

	if cfg.Web.Enabled {
		srv := webserver.NewServer(cfg.Web)
		adminapi.Init(srv, application)
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	// keeps the cron job alive when neither the bot nor the web api runs
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}
