package layout

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 在保存前校验布局：已启用的文字模块样式合法，图片 id 非空且唯一。
// 渲染器对越界的尺寸是宽容的，这里只拒绝结构性错误。
func Validate(l Layout) error {
	for _, name := range TextModules {
		t, ok := l.Text(name).Get()
		if !ok {
			continue
		}
		if err := validate.Struct(t); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidLayout, name, err)
		}
	}
	if qr, ok := l.QR.Get(); ok {
		if err := validate.Struct(qr); err != nil {
			return fmt.Errorf("%w: qr: %v", ErrInvalidLayout, err)
		}
	}
	if imgs, ok := l.Images.Get(); ok {
		seen := make(map[string]struct{}, len(imgs))
		for i, img := range imgs {
			if err := validate.Struct(img); err != nil {
				return fmt.Errorf("%w: images[%d]: %v", ErrInvalidLayout, i, err)
			}
			if _, dup := seen[img.ID]; dup {
				return fmt.Errorf("%w: duplicate image id %q", ErrInvalidLayout, img.ID)
			}
			seen[img.ID] = struct{}{}
		}
	}
	return nil
}
