package domain

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact — загруженный пользователем файл.
//
// Для pipeline это непрозрачный handle: шаги с PayloadBinaryUpload
// отправляют его содержимое как есть. Только для чтения.
type Artifact struct {
	// Name — имя файла (без каталога), из него выводится JobName.
	Name string

	// Data — содержимое файла.
	Data []byte
}

// NewArtifact создаёт Artifact из имени и содержимого.
func NewArtifact(name string, data []byte) *Artifact {
	return &Artifact{Name: filepath.Base(name), Data: data}
}

// LoadArtifact читает файл с диска.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return NewArtifact(path, data), nil
}

// Size возвращает размер содержимого в байтах.
func (a *Artifact) Size() int {
	return len(a.Data)
}

// Payload — готовое тело запроса к удалённому сервису.
type Payload struct {
	// ContentType — значение заголовка Content-Type
	// (multipart/form-data с boundary или application/json).
	ContentType string

	// Body — сериализованное тело.
	Body []byte
}
