package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"

	"github.com/shaiso/Displacement/internal/catalog"
	"github.com/shaiso/Displacement/internal/domain"
)

// Имена полей тела запроса (контракт удалённого сервиса).
const (
	FieldFile    = catalog.FieldFile
	FieldJobName = catalog.FieldJobName
)

// PayloadBuilder строит тело запроса для шага.
// Реализация не должна изменять Context.
type PayloadBuilder interface {
	Build(step catalog.Step, pc *Context) (*domain.Payload, error)
}

// DefaultPayloadBuilder — стандартный PayloadBuilder.
//
// binary_upload: multipart/form-data
//   - file    — содержимое исходного файла
//   - jobName — имя задания
//   - <key>   — JSON результата шага key для каждого key из Requires
//
// structured: application/json
//
//	{"jobName": "...", "<key>": <результат шага key>, ...}
type DefaultPayloadBuilder struct{}

// Build реализует PayloadBuilder.
func (DefaultPayloadBuilder) Build(step catalog.Step, pc *Context) (*domain.Payload, error) {
	switch step.Kind {
	case domain.PayloadBinaryUpload:
		return buildMultipart(step, pc)
	case domain.PayloadStructured:
		return buildStructured(step, pc)
	default:
		return nil, fmt.Errorf("unsupported payload kind %q", step.Kind)
	}
}

// buildMultipart собирает multipart тело с файлом и jobName.
func buildMultipart(step catalog.Step, pc *Context) (*domain.Payload, error) {
	src := pc.Source()
	if src == nil {
		return nil, fmt.Errorf("%w: step %s", ErrMissingArtifact, step.Key)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile(FieldFile, src.Name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(src.Data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	if err := mw.WriteField(FieldJobName, pc.JobName()); err != nil {
		return nil, fmt.Errorf("write %s: %w", FieldJobName, err)
	}

	for _, dep := range step.Requires {
		v, ok := pc.Result(dep)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires %s", ErrMissingResult, step.Key, dep)
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s result: %w", dep, err)
		}
		if err := mw.WriteField(dep, string(encoded)); err != nil {
			return nil, fmt.Errorf("write %s: %w", dep, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	return &domain.Payload{
		ContentType: mw.FormDataContentType(),
		Body:        buf.Bytes(),
	}, nil
}

// buildStructured собирает JSON тело.
func buildStructured(step catalog.Step, pc *Context) (*domain.Payload, error) {
	body := map[string]any{
		FieldJobName: pc.JobName(),
	}

	for _, dep := range step.Requires {
		v, ok := pc.Result(dep)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires %s", ErrMissingResult, step.Key, dep)
		}
		body[dep] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	return &domain.Payload{
		ContentType: "application/json",
		Body:        data,
	}, nil
}
