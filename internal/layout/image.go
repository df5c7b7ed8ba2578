package layout

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// ImageData 保存内嵌图片的原始字节，JSON 中以 data URI 字符串表示。
// 无法识别为 data URI 的字符串会原样保留，渲染时按不可用图片跳过。
type ImageData struct {
	MIME  string
	Bytes []byte
	raw   string
}

// NewImageData 根据图片字节构造 ImageData，MIME 通过内容嗅探得出。
func NewImageData(b []byte) ImageData {
	return ImageData{MIME: http.DetectContentType(b), Bytes: b}
}

// Empty 报告是否没有可解码的图片数据。
func (d ImageData) Empty() bool {
	return len(d.Bytes) == 0
}

// DataURI 返回 `data:<mime>;base64,<payload>` 形式的字符串。
func (d ImageData) DataURI() string {
	if d.Empty() {
		return d.raw
	}
	mime := d.MIME
	if mime == "" {
		mime = http.DetectContentType(d.Bytes)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(d.Bytes)
}

func (d ImageData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.DataURI())
}

func (d *ImageData) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = parseImageSource(s)
	return nil
}

func parseImageSource(s string) ImageData {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return ImageData{raw: s}
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return ImageData{raw: s}
	}
	mime, params, _ := strings.Cut(header, ";")
	if params != "base64" {
		return ImageData{raw: s}
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(b) == 0 {
		return ImageData{raw: s}
	}
	return ImageData{MIME: mime, Bytes: b}
}
