package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "glowchat",
	Level: hclog.LevelFromString("INFO"),
})
