package rpcerr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCodeMapping(t *testing.T) {
	r := require.New(t)
	cases := map[Kind]int{
		InvalidParams:    -32602,
		HexDecode:        -32000,
		RlpDecode:        -32000,
		Signature:        -32000,
		NotFound:         -32001,
		CallFailed:       -32003,
		UnsupportedQuery: -32004,
	}
	for kind, code := range cases {
		err := New(kind, "boom")
		r.Equal(code, err.ErrorCode(), kind.String())
	}
}

func TestErrorMessageIncludesKindAndText(t *testing.T) {
	r := require.New(t)
	err := New(NotFound, "block %d missing", 7)
	r.Equal("NotFound: block 7 missing", err.Error())
}

func TestToJSONRPCWrapsRpcerrError(t *testing.T) {
	r := require.New(t)
	err := New(CallFailed, "reverted")
	jr := ToJSONRPC(err)
	r.Equal(-32003, jr.Code)
	r.Equal("CallFailed: reverted", jr.Message)
}

func TestToJSONRPCFallsBackForPlainError(t *testing.T) {
	r := require.New(t)
	jr := ToJSONRPC(assertError("plain failure"))
	r.Equal(-32603, jr.Code)
	r.Equal("plain failure", jr.Message)
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestIsNotFound(t *testing.T) {
	r := require.New(t)
	r.True(IsNotFound(New(NotFound, "x")))
	r.False(IsNotFound(New(CallFailed, "x")))
	r.False(IsNotFound(assertError("not an rpcerr")))
}
