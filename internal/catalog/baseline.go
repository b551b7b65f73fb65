package catalog

import (
	"fmt"

	"github.com/shaiso/Displacement/internal/domain"
)

// Ключи шагов базового каталога.
const (
	KeyUpload       = "upload"
	KeySplit        = "split"
	KeyPredict      = "predict"
	KeyLabels       = "labels"
	KeyBinaryMask   = "binary_mask"
	KeyDisplacement = "displacement"
	KeyOverlay      = "overlay"
	KeyResult       = "result"
)

// Option настраивает базовый каталог.
type Option func(*baselineOptions)

type baselineOptions struct {
	labelReassembly bool
}

// WithLabelReassembly включает шаг сборки меток после predict.
// Шаг повторно отправляет исходный файл вместе с результатом upload.
func WithLabelReassembly() Option {
	return func(o *baselineOptions) {
		o.labelReassembly = true
	}
}

// Baseline возвращает каталог обработки облака точек:
//
//	upload → split → predict → [labels] → binary_mask → displacement → overlay → result
//
// Без WithLabelReassembly каталог содержит 7 шагов.
func Baseline(opts ...Option) *Catalog {
	var o baselineOptions
	for _, opt := range opts {
		opt(&o)
	}

	steps := []Step{
		{
			Key:      KeyUpload,
			Label:    "Upload point cloud",
			Endpoint: "/upload",
			Kind:     domain.PayloadBinaryUpload,
			Extract:  Field("previews"),
		},
		{
			Key:      KeySplit,
			Label:    "Split into tiles",
			Endpoint: "/split",
			Kind:     domain.PayloadStructured,
		},
		{
			Key:      KeyPredict,
			Label:    "Predict classes",
			Endpoint: "/predict",
			Kind:     domain.PayloadStructured,
			Extract:  Field("prediction"),
		},
	}

	if o.labelReassembly {
		steps = append(steps, Step{
			Key:      KeyLabels,
			Label:    "Reassemble labels",
			Endpoint: "/labels",
			Kind:     domain.PayloadBinaryUpload,
			Requires: []string{KeyUpload},
			Extract:  Field("labels"),
		})
	}

	steps = append(steps,
		Step{
			Key:      KeyBinaryMask,
			Label:    "Build binary mask",
			Endpoint: "/binary-mask",
			Kind:     domain.PayloadStructured,
			Extract:  Field("mask"),
		},
		Step{
			Key:      KeyDisplacement,
			Label:    "Compute vertical displacement",
			Endpoint: "/displacement",
			Kind:     domain.PayloadStructured,
		},
		Step{
			Key:      KeyOverlay,
			Label:    "Render overlay",
			Endpoint: "/overlay",
			Kind:     domain.PayloadStructured,
			Extract:  Field("overlay"),
		},
		Step{
			Key:      KeyResult,
			Label:    "Fetch final result",
			Endpoint: "/result",
			Kind:     domain.PayloadStructured,
			Extract:  Field("result_image"),
		},
	)

	return MustNew(steps...)
}

// Field возвращает извлекатель поля name из тела ответа.
// Отсутствующее поле — ошибка шага.
func Field(name string) ResultExtractor {
	return func(body map[string]any) (any, error) {
		v, ok := body[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
		return v, nil
	}
}

// Body возвращает извлекатель, публикующий тело ответа целиком.
func Body() ResultExtractor {
	return func(body map[string]any) (any, error) {
		out := make(map[string]any, len(body))
		for k, v := range body {
			out[k] = v
		}
		return out, nil
	}
}
