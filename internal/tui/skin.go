package tui

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// skinFile is the on-disk shape of a skin. Empty fields keep the default.
type skinFile struct {
	Name   string `yaml:"name"`
	Colors struct {
		Title     string `yaml:"title"`
		Border    string `yaml:"border"`
		Text      string `yaml:"text"`
		Muted     string `yaml:"muted"`
		StatusBar string `yaml:"status_bar"`
		Frequency string `yaml:"frequency"`
		Amplitude string `yaml:"amplitude"`
		StatusOK  string `yaml:"status_ok"`
		StatusErr string `yaml:"status_error"`
		StatusFg  string `yaml:"status_text"`
	} `yaml:"colors"`
}

// LoadSkin reads <dir>/skins/<name>.yml (or .yaml) on top of the default
// theme. The name "default" needs no file.
func LoadSkin(name, dir string) (Theme, error) {
	t := DefaultTheme()
	if name == "" || name == "default" {
		return t, nil
	}

	var data []byte
	var err error
	for _, ext := range []string{".yml", ".yaml"} {
		data, err = os.ReadFile(filepath.Join(dir, "skins", name+ext))
		if err == nil {
			break
		}
	}
	if err != nil {
		return t, fmt.Errorf("skin %q: %w", name, err)
	}

	var sf skinFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return t, fmt.Errorf("skin %q: %w", name, err)
	}

	set := func(dst *lipgloss.Color, v string) {
		if v != "" {
			*dst = lipgloss.Color(v)
		}
	}
	set(&t.Title, sf.Colors.Title)
	set(&t.Border, sf.Colors.Border)
	set(&t.Text, sf.Colors.Text)
	set(&t.Muted, sf.Colors.Muted)
	set(&t.StatusBar, sf.Colors.StatusBar)
	set(&t.Frequency, sf.Colors.Frequency)
	set(&t.Amplitude, sf.Colors.Amplitude)
	set(&t.StatusOK, sf.Colors.StatusOK)
	set(&t.StatusErr, sf.Colors.StatusErr)
	set(&t.StatusText, sf.Colors.StatusFg)
	return t, nil
}

// InitializeSkin loads the named skin and makes it the active theme. On
// error the default theme stays active.
func InitializeSkin(name, dir string) error {
	t, err := LoadSkin(name, dir)
	if err != nil {
		theme = DefaultTheme()
		return err
	}
	theme = t
	return nil
}
