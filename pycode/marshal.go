package pycode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is wrapped by every error returned from [Unmarshal].  A search-path provider that
// encounters it while reading an archived `.pyc` entry treats the entry as absent and continues
// with the remaining path entries.
var ErrMalformed = errors.New("malformed code object")

// magic identifies the serialized form of a [Code] object.  The final byte is the format version.
var magic = []byte{'P', 'Y', 'M', 'C', 1}

// Marshal serializes a [Code] object, including every nested code object, into a compact binary
// form.  [Unmarshal] reconstructs a value that compares equal to the original.
func Marshal(co *Code) []byte {
	var buf bytes.Buffer
	buf.Write(magic)
	marshalCode(&buf, co)
	return buf.Bytes()
}

func marshalCode(buf *bytes.Buffer, co *Code) {
	marshalString(buf, co.Name)
	marshalString(buf, co.Filename)
	marshalUint(buf, uint64(len(co.Names)))
	for _, s := range co.Names {
		marshalString(buf, s)
	}
	marshalUint(buf, uint64(len(co.Consts)))
	for _, c := range co.Consts {
		buf.WriteByte(byte(c.Kind))
		switch c.Kind {
		case ConstNone:
		case ConstInt:
			marshalInt(buf, int64(c.Int))
		case ConstStr:
			marshalString(buf, c.Str)
		case ConstTuple:
			marshalUint(buf, uint64(len(c.Tuple)))
			for _, s := range c.Tuple {
				marshalString(buf, s)
			}
		case ConstCode:
			marshalCode(buf, c.Code)
		}
	}
	marshalUint(buf, uint64(len(co.Instrs)))
	for _, in := range co.Instrs {
		buf.WriteByte(byte(in.Op))
		marshalInt(buf, int64(in.Arg))
	}
}

func marshalUint(buf *bytes.Buffer, v uint64) {
	buf.Write(binary.AppendUvarint(nil, v))
}

func marshalInt(buf *bytes.Buffer, v int64) {
	buf.Write(binary.AppendVarint(nil, v))
}

func marshalString(buf *bytes.Buffer, s string) {
	marshalUint(buf, uint64(len(s)))
	buf.WriteString(s)
}

// Unmarshal parses the binary form produced by [Marshal].  Every returned error wraps
// [ErrMalformed].
func Unmarshal(data []byte) (*Code, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrMalformed)
	}
	r := bytes.NewReader(data[len(magic):])
	co, err := unmarshalCode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes of trailing garbage", ErrMalformed, r.Len())
	}
	return co, nil
}

func unmarshalCode(r *bytes.Reader) (*Code, error) {
	co := &Code{}
	var err error
	if co.Name, err = unmarshalString(r); err != nil {
		return nil, err
	}
	if co.Filename, err = unmarshalString(r); err != nil {
		return nil, err
	}
	nNames, err := unmarshalLen(r)
	if err != nil {
		return nil, err
	}
	co.Names = make([]string, nNames)
	for i := range co.Names {
		if co.Names[i], err = unmarshalString(r); err != nil {
			return nil, err
		}
	}
	nConsts, err := unmarshalLen(r)
	if err != nil {
		return nil, err
	}
	co.Consts = make([]Const, nConsts)
	for i := range co.Consts {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated constant pool", ErrMalformed)
		}
		c := Const{Kind: ConstKind(kind)}
		switch c.Kind {
		case ConstNone:
		case ConstInt:
			if c.Int, err = unmarshalInt(r); err != nil {
				return nil, err
			}
		case ConstStr:
			if c.Str, err = unmarshalString(r); err != nil {
				return nil, err
			}
		case ConstTuple:
			n, err := unmarshalLen(r)
			if err != nil {
				return nil, err
			}
			c.Tuple = make([]string, n)
			for j := range c.Tuple {
				if c.Tuple[j], err = unmarshalString(r); err != nil {
					return nil, err
				}
			}
		case ConstCode:
			if c.Code, err = unmarshalCode(r); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown constant kind %d", ErrMalformed, kind)
		}
		co.Consts[i] = c
	}
	nInstrs, err := unmarshalLen(r)
	if err != nil {
		return nil, err
	}
	co.Instrs = make([]Instr, nInstrs)
	for i := range co.Instrs {
		op, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated instruction stream", ErrMalformed)
		}
		arg, err := unmarshalInt(r)
		if err != nil {
			return nil, err
		}
		co.Instrs[i] = Instr{Op: Opcode(op), Arg: arg}
	}
	return co, nil
}

func unmarshalLen(r *bytes.Reader) (int, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: bad length", ErrMalformed)
	}
	return int(v), nil
}

func unmarshalInt(r *bytes.Reader) (int, error) {
	v, err := binary.ReadVarint(r)
	if err != nil || v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: bad integer", ErrMalformed)
	}
	return int(v), nil
}

func unmarshalString(r *bytes.Reader) (string, error) {
	n, err := unmarshalLen(r)
	if err != nil {
		return "", err
	}
	if n > r.Len() {
		return "", fmt.Errorf("%w: truncated string", ErrMalformed)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", fmt.Errorf("%w: truncated string", ErrMalformed)
	}
	return string(b), nil
}
