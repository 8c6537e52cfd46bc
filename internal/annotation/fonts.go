package annotation

import (
	"fmt"
	"os"

	"github.com/flopp/go-findfont"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Candidate system fonts, tried in order before falling back to the
// embedded Go font.
var systemFonts = []string{"DejaVuSans.ttf", "Arial.ttf", "Helvetica.ttf", "Roboto-Regular.ttf"}

// FontSource holds one parsed TrueType font and mints faces at arbitrary
// sizes from it. Parsing happens once; a face per size is cheap.
type FontSource struct {
	tt *truetype.Font
}

// LoadFontSource locates a usable TrueType font on the host via findfont and
// falls back to the embedded Go Regular font, so rendering never depends on
// the host's font installation.
func LoadFontSource() (*FontSource, error) {
	for _, name := range systemFonts {
		path, err := findfont.Find(name)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		tt, err := truetype.Parse(data)
		if err != nil {
			continue
		}
		return &FontSource{tt: tt}, nil
	}

	tt, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse embedded font: %w", err)
	}
	return &FontSource{tt: tt}, nil
}

// Face returns a font face at the given pixel size.
func (f *FontSource) Face(size float64) font.Face {
	return truetype.NewFace(f.tt, &truetype.Options{Size: size})
}
