package grid

import (
	_ "embed"
	"sync"
)

//go:embed layouts/classic.yaml
var classicYAML []byte

var (
	classicOnce  sync.Once
	classicBoard *Board
	classicErr   error
)

// Classic returns the standard 16x16 board: four tiles, seventeen targets
// and a blocked centre. The board is built once and shared.
func Classic() (*Board, error) {
	classicOnce.Do(func() {
		l, err := ParseLayout(classicYAML)
		if err != nil {
			classicErr = err
			return
		}
		classicBoard, classicErr = New(l)
	})
	return classicBoard, classicErr
}
