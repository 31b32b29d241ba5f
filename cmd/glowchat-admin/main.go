package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/glowchat/glowchat/adminauth"
	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/store"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for offline administration of a glowchat instance.
// It operates on the store and the credential file directly and is meant to
// run against a stopped server (or one sharing the same database).

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

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

	admin := adminauth.NewManager(globalConfig.AdminConfig.PasswordFile)

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show room or messages",
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room",
		Short: "Show the room singleton",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			room, err := st.Room()
			if err != nil {
				globals.AppLogger.Error("could not get room", "error", err)
				return
			}
			fmt.Printf("id=%d active=%v password=%s\n", room.Id, room.IsActive, room.Password)
		},
	}
	var cmdShowMessages = &cobra.Command{
		Use:   "messages",
		Short: "Show the full message log with reactions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			messages, err := st.Messages()
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			for _, msg := range messages {
				reactions, err := st.ReactionsFor(msg.Id)
				if err != nil {
					globals.AppLogger.Error("could not get reactions", "id", msg.Id, "error", err)
					return
				}
				raw, err := json.Marshal(struct {
					Message   interface{} `json:"message"`
					Reactions interface{} `json:"reactions"`
				}{msg, reactions})
				if err != nil {
					globals.AppLogger.Error("could not marshal message", "error", err)
					return
				}
				fmt.Println(string(raw))
			}
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete [message id]",
		Short: "Delete one message and its reactions",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				globals.AppLogger.Error("invalid message id", "arg", args[0])
				return
			}
			if err := st.DeleteMessage(id); err != nil {
				globals.AppLogger.Error("could not delete message", "error", err)
				return
			}
			fmt.Println("deleted")
		},
	}
	var cmdClear = &cobra.Command{
		Use:   "clear",
		Short: "Clear the whole chat history",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := st.ClearMessages(); err != nil {
				globals.AppLogger.Error("could not clear chat", "error", err)
				return
			}
			fmt.Println("cleared")
		},
	}
	var cmdRoomPassword = &cobra.Command{
		Use:   "room-password [new password]",
		Short: "Change the room password",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := st.UpdateRoomPassword(args[0]); err != nil {
				globals.AppLogger.Error("could not update room password", "error", err)
				return
			}
			fmt.Println("room password updated")
		},
	}
	var cmdAdminPassword = &cobra.Command{
		Use:   "admin-password [new password]",
		Short: "Change the admin password (invalidates issued tokens)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := admin.Change(args[0]); err != nil {
				globals.AppLogger.Error("could not update admin password", "error", err)
				return
			}
			fmt.Println("admin password updated")
		},
	}
	var cmdRoomActive = &cobra.Command{
		Use:   "room-active [true|false]",
		Short: "Open or close the room for joins",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			active, err := strconv.ParseBool(args[0])
			if err != nil {
				globals.AppLogger.Error("invalid flag", "arg", args[0])
				return
			}
			if err := st.SetRoomActive(active); err != nil {
				globals.AppLogger.Error("could not set room state", "error", err)
				return
			}
			fmt.Printf("room active=%v\n", active)
		},
	}

	rootCmd := &cobra.Command{Use: "glowchat-admin"}
	rootCmd.AddCommand(cmdShow, cmdDelete, cmdClear, cmdRoomPassword, cmdAdminPassword, cmdRoomActive)
	cmdShow.AddCommand(cmdShowRoom, cmdShowMessages)
	if err := rootCmd.Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
	}
}
