package disk

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Длины в байтах: ФС ограничивает имя 255 байтами (NAME_MAX). Полное имя
// "{id}_{stem}{ext}" не длиннее 100+1+100+11 байт, остаётся запас под
// суффикс " (N)".
const (
	defaultFileName = "unnamed"
	maxBaseNameLen  = 100
	maxExtLen       = 10
)

// FileName строит имя выходного файла "{attachmentID}_{origName}":
//
//   - обрезает query-строку и путь;
//   - базовое имя чистится sanitizeFilename;
//   - расширение сохраняется, если оно состоит только из букв и цифр.
//
// Примеры:
//
//	"111", "img1.png" -> "111_img1.png"
//	"111", "img1.png?ex=65&is=66" -> "111_img1.png"
//	"111", "../../etc/passwd" -> "111_passwd"
//	"111", "my photo (1).JPG" -> "111_my-photo-1.JPG"
func FileName(attachmentID, origName string) string {
	if p := strings.IndexByte(origName, '?'); p != -1 {
		origName = origName[:p]
	}
	if p := strings.LastIndexAny(origName, `/\`); p != -1 {
		origName = origName[p+1:]
	}

	stem, ext := splitExt(origName)
	if !validExt(ext) {
		stem, ext = origName, ""
	}

	name := sanitizeFilename(stem, maxBaseNameLen) + ext
	if attachmentID == "" {
		return name
	}
	return sanitizeFilename(attachmentID, maxBaseNameLen) + "_" + name
}

// WithExt дописывает к имени без расширения расширение по MIME-типу
// ответа ("text/plain; charset=utf-8" -> ".txt"). Имя с расширением и
// неизвестный тип оставляют имя как есть.
func WithExt(name, contentType string) string {
	if _, ext := splitExt(name); validExt(ext) {
		return name
	}
	if p := strings.IndexByte(contentType, ';'); p != -1 {
		contentType = contentType[:p]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return name
	}

	m := mimetype.Lookup(contentType)
	if m == nil || !validExt(m.Extension()) {
		return name
	}
	return name + m.Extension()
}

// splitExt делит имя по последней точке. Расширение включает точку.
func splitExt(name string) (stem, ext string) {
	ext = path.Ext(name)
	return name[:len(name)-len(ext)], ext
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > maxExtLen+1 {
		return false
	}
	for _, r := range ext[1:] {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// ASCII опасные символы
const asciiProblem = `<>:"/\|?*~.;#$%&'(){}[]!` + "`"

// Fullwidth неопасные символы, но вводят в заблуждение
const fullwidthProblem = "＜＞：＂／＼｜？＊～；＃＄％＆＇（）｛｝［］！"

// sanitizeFilename удаляет управляющие и неграфические символы, заменяет
// пробельные и проблемные на '-', схлопывает повторные '-' и обрезает
// крайние. Результат не длиннее maxLen байт и режется только по границе
// руны. Пустой результат заменяется на "unnamed".
func sanitizeFilename(s string, maxLen int) string {
	var sb strings.Builder
	sb.Grow(min(len(s), maxLen))

	prev := '-' // чтобы не писать лидирующий '-'
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			r = '-'
		case unicode.IsControl(r) || !unicode.IsPrint(r):
			continue
		case strings.ContainsRune(asciiProblem, r), strings.ContainsRune(fullwidthProblem, r):
			r = '-'
		}

		if r == '-' && prev == '-' {
			continue
		}
		if sb.Len()+utf8.RuneLen(r) > maxLen {
			break
		}

		sb.WriteRune(r)
		prev = r
	}

	name := strings.TrimSuffix(sb.String(), "-")
	if name == "" {
		return defaultFileName
	}
	return name
}
