package pycode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()
	fn := NewBuilder("myfunc", "mymodule.py")
	fn.EmitImport("shutil", nil, 0)
	fn.EmitStore("shutil")

	b := NewBuilder("<module>", "mymodule.py")
	b.EmitImport("os", []string{"path", "sep"}, 0)
	b.EmitStore("path")
	b.EmitStore("sep")
	b.Emit(OpLoadConst, b.ConstIndex(CodeConst(fn.Code())))
	b.Emit(OpMakeFunction, 0)
	b.EmitStore("myfunc")
	b.Emit(OpLoadConst, b.ConstIndex(StrConst("docstring")))
	b.Emit(OpLoadConst, b.ConstIndex(None()))
	co := b.Code()
	require.NoError(t, co.Check())

	got, err := Unmarshal(Marshal(co))
	require.NoError(t, err)
	assert.Equal(t, co, got)
	require.NoError(t, got.Check())
}

func TestUnmarshalMalformed(t *testing.T) {
	t.Parallel()
	valid := Marshal(&Code{Name: "<module>", Filename: "mymodule.py"})
	for _, tc := range []struct {
		desc string
		data []byte
	}{
		{desc: "empty", data: nil},
		{desc: "bad magic", data: []byte("PYMX\x01rest")},
		{desc: "truncated", data: valid[:len(valid)-1]},
		{desc: "trailing garbage", data: append(append([]byte{}, valid...), 0)},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			_, err := Unmarshal(tc.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestUnmarshalUnknownConstKind(t *testing.T) {
	t.Parallel()
	data := Marshal(&Code{
		Name:   "<module>",
		Consts: []Const{{Kind: ConstKind(42)}},
	})
	_, err := Unmarshal(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}
