package utils

import (
	"fmt"

	"github.com/fatih/color"
)

// Levelled, coloured log helpers. Messages keep the emoji prefixes used across the service.

func LogInfo(format string, v ...interface{}) {
	color.Cyan("[INFO] %s", fmt.Sprintf(format, v...))
}

func LogSuccess(format string, v ...interface{}) {
	color.Green("[OK] %s", fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...interface{}) {
	color.Yellow("[WARN] %s", fmt.Sprintf(format, v...))
}

func LogError(format string, v ...interface{}) {
	color.Red("[ERROR] %s", fmt.Sprintf(format, v...))
}

// LogDebug is silent unless DebugEnabled is set.
func LogDebug(format string, v ...interface{}) {
	if !DebugEnabled {
		return
	}
	color.HiBlack("[DEBUG] %s", fmt.Sprintf(format, v...))
}

var DebugEnabled bool
