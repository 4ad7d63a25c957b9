//go:build darwin

package hotkey

import (
	"golang.design/x/hotkey"
	"voicetutor/internal/config"
)

// modifierMap: модификаторы конфигурации в коды macOS.
var modifierMap = map[config.Modifier]hotkey.Modifier{
	config.ModCtrl:  hotkey.ModCtrl,
	config.ModShift: hotkey.ModShift,
	config.ModAlt:   hotkey.ModOption,
	config.ModSuper: hotkey.ModCmd,
}
