package grpc

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

const (
	// codecName 是注册到 gRPC 的内容子类型，请求头中为 application/grpc+gob。
	codecName = "gob"
	// ZstdCompressor 是 zstd 压缩器在 gRPC 中注册的名字。
	ZstdCompressor = "zstd"
)

func init() {
	encoding.RegisterCodec(gobCodec{})
	encoding.RegisterCompressor(zstdCompressor{})
}

// gobCodec 用 gob 编码 param 包中的消息，proto 消息（例如 emptypb.Empty）仍走 protobuf。
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string {
	return codecName
}

// zstdCompressor 实现 encoding.Compressor。
type zstdCompressor struct{}

func (zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
}

func (zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &zstdReader{d: d}, nil
}

func (zstdCompressor) Name() string {
	return ZstdCompressor
}

// zstdReader 在读到 EOF 时释放解码器。
type zstdReader struct {
	d *zstd.Decoder
}

func (r *zstdReader) Read(p []byte) (int, error) {
	if r.d == nil {
		return 0, io.EOF
	}
	n, err := r.d.Read(p)
	if errors.Is(err, io.EOF) {
		r.d.Close()
		r.d = nil
	}
	return n, err
}
