package ocr

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// tesseract names that are not plain ISO 639-2 codes
var tesseractOverrides = map[string]string{
	"zh":      "chi_sim",
	"zh-Hans": "chi_sim",
	"zh-Hant": "chi_tra",
}

// TesseractLanguage maps a language hint ("en", "de-AT", "eng", "en+fr") to
// tesseract's traineddata name(s). Empty means English.
func TesseractLanguage(hint string) (string, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "eng", nil
	}
	parts := strings.Split(hint, "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		code, err := tesseractCode(strings.TrimSpace(p))
		if err != nil {
			return "", err
		}
		out = append(out, code)
	}
	return strings.Join(out, "+"), nil
}

func tesseractCode(hint string) (string, error) {
	if code, ok := tesseractOverrides[hint]; ok {
		return code, nil
	}
	// already a tesseract name such as chi_sim or deu_frak
	if strings.Contains(hint, "_") {
		return hint, nil
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, hint)
	}
	if code, ok := tesseractOverrides[tag.String()]; ok {
		return code, nil
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, hint)
	}
	if code, ok := tesseractOverrides[base.String()]; ok {
		return code, nil
	}
	return base.ISO3(), nil
}
