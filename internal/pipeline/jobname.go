package pipeline

import (
	"path/filepath"
	"strings"
)

// DeriveJobName выводит имя задания из имени файла.
//
// Берёт базовое имя и отрезает ровно одно расширение:
//
//	"Main_St.las"    → "Main_St"
//	"tile.tar.gz"    → "tile.tar"
//	"README"         → "README"
//	".las"           → ".las"
//
// Если exts не пустой, отрезается только совпадающее расширение
// (без учёта регистра), иначе имя возвращается без изменений.
func DeriveJobName(name string, exts ...string) string {
	if name == "" {
		return ""
	}

	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return base
	}

	if len(exts) > 0 && !matchExt(ext, exts) {
		return base
	}

	return strings.TrimSuffix(base, ext)
}

// HasExtension сообщает, подходит ли файл под список расширений.
// Пустой список подходит для любого файла.
func HasExtension(name string, exts ...string) bool {
	if len(exts) == 0 {
		return true
	}
	return matchExt(filepath.Ext(name), exts)
}

func matchExt(ext string, exts []string) bool {
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
