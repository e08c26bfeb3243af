// Package results normalizes plugin outputs into the canonical "frames"
// document consumed by every downstream surface.
//
// Two input shapes are accepted:
//
//	detection list:  {detections: [{xyxy:[x1,y1,x2,y2], confidence, class_name}, ...]}
//	parallel lists:  {boxes: [[x1,y1,x2,y2], ...], scores: [...], labels: [...]}
//
// Both normalize to:
//
//	{frames: [{frame_index: 0, boxes: [{x1,y1,x2,y2}, ...], scores: [...], labels: [...]}]}
package results

import "fmt"

// NormalizationError identifies a failure to normalize a plugin output. The
// caller falls back to the raw mapping; normalization never fails a job.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return "result normalization failed: " + e.Reason
}

func normErrorf(format string, args ...any) error {
	return &NormalizationError{Reason: fmt.Sprintf(format, args...)}
}

// Normalize transforms an accepted plugin output shape into the canonical
// frames document. Inputs matching neither shape, or violating the shape's
// constraints, yield a NormalizationError.
func Normalize(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		return nil, normErrorf("output mapping is nil")
	}
	if _, ok := raw["detections"]; ok {
		return normalizeDetections(raw)
	}
	if _, ok := raw["boxes"]; ok {
		return normalizeParallel(raw)
	}
	return nil, normErrorf("output has neither 'detections' nor 'boxes'")
}

func normalizeDetections(raw map[string]any) (map[string]any, error) {
	list, ok := raw["detections"].([]any)
	if !ok {
		return nil, normErrorf("'detections' is not a list")
	}
	if len(list) == 0 {
		return nil, normErrorf("'detections' is empty")
	}

	boxes := make([]map[string]any, 0, len(list))
	scores := make([]float64, 0, len(list))
	labels := make([]string, 0, len(list))

	for i, item := range list {
		det, ok := item.(map[string]any)
		if !ok {
			return nil, normErrorf("detection %d is not a mapping", i)
		}
		box, err := parseBox(det["xyxy"], fmt.Sprintf("detection %d xyxy", i))
		if err != nil {
			return nil, err
		}
		score, ok := toFloat(det["confidence"])
		if !ok {
			return nil, normErrorf("detection %d is missing confidence", i)
		}
		if score < 0 || score > 1 {
			return nil, normErrorf("detection %d confidence %v out of [0,1]", i, score)
		}
		label, ok := det["class_name"].(string)
		if !ok {
			return nil, normErrorf("detection %d is missing class_name", i)
		}
		boxes = append(boxes, box)
		scores = append(scores, score)
		labels = append(labels, label)
	}

	return framesDoc(boxes, scores, labels), nil
}

func normalizeParallel(raw map[string]any) (map[string]any, error) {
	rawBoxes, ok := raw["boxes"].([]any)
	if !ok {
		return nil, normErrorf("'boxes' is not a list")
	}
	rawScores, ok := raw["scores"].([]any)
	if !ok {
		return nil, normErrorf("'scores' is missing or not a list")
	}
	rawLabels, ok := raw["labels"].([]any)
	if !ok {
		return nil, normErrorf("'labels' is missing or not a list")
	}
	n := len(rawBoxes)
	if n == 0 {
		return nil, normErrorf("'boxes' is empty")
	}
	if len(rawScores) != n || len(rawLabels) != n {
		return nil, normErrorf("length mismatch: boxes=%d scores=%d labels=%d",
			n, len(rawScores), len(rawLabels))
	}

	boxes := make([]map[string]any, 0, n)
	scores := make([]float64, 0, n)
	labels := make([]string, 0, n)

	for i := 0; i < n; i++ {
		box, err := parseBox(rawBoxes[i], fmt.Sprintf("box %d", i))
		if err != nil {
			return nil, err
		}
		score, ok := toFloat(rawScores[i])
		if !ok {
			return nil, normErrorf("score %d is not numeric", i)
		}
		if score < 0 || score > 1 {
			return nil, normErrorf("score %d value %v out of [0,1]", i, score)
		}
		label, ok := rawLabels[i].(string)
		if !ok {
			return nil, normErrorf("label %d is not a string", i)
		}
		boxes = append(boxes, box)
		scores = append(scores, score)
		labels = append(labels, label)
	}

	return framesDoc(boxes, scores, labels), nil
}

// parseBox converts a 4-element numeric list into the named-corner mapping.
func parseBox(v any, what string) (map[string]any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, normErrorf("%s is not a list", what)
	}
	if len(list) != 4 {
		return nil, normErrorf("%s has %d elements, want 4", what, len(list))
	}
	coords := make([]float64, 4)
	for i, c := range list {
		f, ok := toFloat(c)
		if !ok {
			return nil, normErrorf("%s element %d is not numeric", what, i)
		}
		coords[i] = f
	}
	return map[string]any{
		"x1": coords[0], "y1": coords[1],
		"x2": coords[2], "y2": coords[3],
	}, nil
}

func framesDoc(boxes []map[string]any, scores []float64, labels []string) map[string]any {
	return map[string]any{
		"frames": []any{
			map[string]any{
				"frame_index": 0,
				"boxes":       boxes,
				"scores":      scores,
				"labels":      labels,
			},
		},
	}
}

// toFloat accepts the numeric representations JSON decoding and plugin code
// commonly produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
