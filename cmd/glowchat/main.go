package main

import (
	"net/http"
	"os"
	"os/signal"

	"github.com/glowchat/glowchat/adminauth"
	"github.com/glowchat/glowchat/api"
	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/presence"
	"github.com/glowchat/glowchat/store"
	"github.com/glowchat/glowchat/ws"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
	noPush     = pflag.Bool("no-push", false, "disable the websocket push path")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	st, err := store.New(globalConfig)
	if err != nil {
		panic(err)
	}
	defer st.Close()
	if err := st.EnsureRoom(globalConfig.RoomConfig.Password, !globalConfig.RoomConfig.Inactive); err != nil {
		panic(err)
	}

	typing := presence.NewTypingRegistry(globalConfig.PresenceConfig.TypingVisibleFor, globalConfig.PresenceConfig.TypingStaleAfter)
	tracker := presence.NewActiveTracker(globalConfig.PresenceConfig.ActiveStaleAfter)
	sweeper := presence.StartSweeper(typing, tracker)
	defer sweeper.Stop()

	admin := adminauth.NewManager(globalConfig.AdminConfig.PasswordFile)

	// the push path is a latency optimization only; polling stays the
	// authoritative convergence path either way
	var notifier api.Notifier
	var hub *ws.Hub
	if !*noPush {
		hub = ws.NewHub()
		go hub.Run()
		notifier = hub
	}

	handler := api.NewHandler(st, typing, tracker, admin, notifier)
	router := handler.Router()
	if hub != nil {
		router.HandleFunc("/ws", ws.ServeWS(hub, typing)).Methods(http.MethodGet)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		st.Close()
		os.Exit(0)
	}()

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, router)
	} else {
		err = http.ListenAndServe(*addr, router)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}
