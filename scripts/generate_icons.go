//go:build ignore

// Генерирует иконки трея для каждой фазы цикла.
// Запуск: go generate ./embedded
package main

import (
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"
)

const size = 64

type mark int

const (
	markNone mark = iota
	markBubble
	markCross
)

func main() {
	dir := "embedded"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("Не удалось создать директорию %s: %v", dir, err)
	}

	icons := []struct {
		name  string
		color color.RGBA
		mark  mark
	}{
		{"icon_idle.png", color.RGBA{128, 128, 128, 255}, markNone},
		{"icon_recording.png", color.RGBA{220, 50, 50, 255}, markNone},
		{"icon_processing.png", color.RGBA{230, 160, 50, 255}, markNone},
		{"icon_ready.png", color.RGBA{60, 170, 90, 255}, markBubble},
		{"icon_error.png", color.RGBA{150, 40, 40, 255}, markCross},
	}

	for _, icon := range icons {
		path := filepath.Join(dir, icon.name)
		if err := writeIcon(path, draw(icon.color, icon.mark)); err != nil {
			log.Fatalf("Ошибка генерации %s: %v", icon.name, err)
		}
		log.Printf("Создан: %s", path)
	}
}

// draw рисует круг с ножкой (упрощённый микрофон) и метку фазы.
func draw(c color.RGBA, m mark) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	white := color.NRGBA{255, 255, 255, 255}
	cx, cy, r := size/2, size/2, 20

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-cx, y-cy
			inside := dx*dx+dy*dy <= r*r

			// Ножка
			if !inside && y >= cy+r && y < cy+r+10 && x >= cx-3 && x <= cx+3 {
				inside = true
			}
			// Хвостик реплики
			if m == markBubble && !inside && x >= cx-14 && x <= cx-4 && y >= cy+12 && y <= cy+26 &&
				float64(x-(cx-14)) >= float64(y-(cy+12))*0.7 {
				inside = true
			}
			if !inside {
				continue
			}

			img.Set(x, y, color.NRGBA{c.R, c.G, c.B, c.A})
			if m == markCross && dx*dx+dy*dy <= 12*12 && (abs(dx-dy) <= 2 || abs(dx+dy) <= 2) {
				img.Set(x, y, white)
			}
		}
	}
	return img
}

func writeIcon(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
