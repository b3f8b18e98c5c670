package banner

import (
	"github.com/charmbracelet/lipgloss"
)

var bannerColor = lipgloss.Color("#FF5F87")

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(bannerColor).
		Bold(true)

	ascii := `
         __   __                    __
   _____/ /__/ /_  ___  ____  _____/ /_
  / ___/ //_/ __ \/ _ \/ __ \/ ___/ __ \
 (__  ) ,< / /_/ /  __/ / / / /__/ / / /
/____/_/|_/_.___/\___/_/ /_/\___/_/ /_/ `

	return "\n" + style.Render(ascii) + "\n"
}
