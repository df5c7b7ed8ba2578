package editor

import (
	"bytes"
	"fmt"

	"eventcert/internal/layout"
)

// OpType 是可序列化的编辑手势类型，供 HTTP 接口批量回放编辑。
type OpType string

const (
	OpDrag        OpType = "drag"
	OpResize      OpType = "resize"
	OpToggleAlign OpType = "toggleAlign"
	OpEnable      OpType = "enable"
	OpDisable     OpType = "disable"
	OpUploadImage OpType = "uploadImage"
	OpRemoveImage OpType = "removeImage"
)

// Op 是一个编辑手势。X/Y 为屏幕坐标，DX 为缩放时的屏幕水平位移，
// Image 为上传图片的原始字节（JSON 中为 base64）。
type Op struct {
	Type   OpType  `json:"type" binding:"required"`
	Target string  `json:"target"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DX     float64 `json:"dx"`
	Image  []byte  `json:"image,omitempty"`
}

// Apply 依次回放手势，每个拖拽与缩放手势都是一次完整的按下-移动-抬起。
// 返回新上传图片的 id。
func (s *Session) Apply(ops []Op) ([]string, error) {
	var uploaded []string
	for i, op := range ops {
		switch op.Type {
		case OpDrag:
			s.Drag(op.Target, op.X, op.Y)
			s.EndGesture()
		case OpResize:
			s.BeginResize(op.Target)
			s.Resize(op.Target, op.DX)
			s.EndGesture()
		case OpToggleAlign:
			s.ToggleAlign(layout.Module(op.Target))
		case OpEnable:
			s.EnableModule(layout.Module(op.Target))
		case OpDisable:
			s.DisableModule(layout.Module(op.Target))
		case OpUploadImage:
			id, err := s.UploadImage(bytes.NewReader(op.Image))
			if err != nil {
				return uploaded, fmt.Errorf("op %d: %w", i, err)
			}
			uploaded = append(uploaded, id)
		case OpRemoveImage:
			s.RemoveImage(op.Target)
		default:
			return uploaded, fmt.Errorf("op %d: unknown type %q", i, op.Type)
		}
	}
	return uploaded, nil
}
