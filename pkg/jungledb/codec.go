package jungledb

import "encoding/json"

// Codec converts between the in-memory value a caller works with and the
// byte representation a PersistentBackend stores on disk (Supplemented
// Feature #2). A PersistentBackend applies its configured Codec on every
// Flush and Get; InMemoryBackend needs none, since it never leaves memory.
type Codec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte, out any) error
}

// RawCodec stores []byte values unchanged and rejects anything else,
// for backends whose callers already serialize their own records.
type RawCodec struct{}

func (RawCodec) Encode(value any) ([]byte, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, usageErrorf("RawCodec.Encode", "value is %T, not []byte", value)
	}
	return b, nil
}

func (RawCodec) Decode(data []byte, out any) error {
	ptr, ok := out.(*[]byte)
	if !ok {
		return usageErrorf("RawCodec.Decode", "out is %T, not *[]byte", out)
	}
	*ptr = append([]byte(nil), data...)
	return nil
}

// JSONCodec is the default Codec, serializing values with encoding/json.
type JSONCodec struct{}

func (JSONCodec) Encode(value any) ([]byte, error) { return json.Marshal(value) }

func (JSONCodec) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }
