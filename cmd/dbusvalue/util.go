package main

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danderson/dbusvalue"
)

type indenter struct {
	w          io.Writer
	prefix     string
	indentNext bool
}

func newIndenter(w io.Writer) *indenter {
	return &indenter{w: w, indentNext: true}
}

func (i *indenter) f(msg string, args ...any) {
	fmt.Fprintf(i, msg+"\n", args...)
}

func (i *indenter) Write(bs []byte) (int, error) {
	ret := 0
	for len(bs) > 0 {
		if i.indentNext {
			i.indentNext = false
			_, err := io.WriteString(i.w, i.prefix)
			if err != nil {
				return ret, err
			}
		}

		wr := bs
		idx := bytes.IndexByte(bs, '\n')
		if idx >= 0 {
			i.indentNext = true
			wr, bs = bs[:idx+1], bs[idx+1:]
		} else {
			bs = nil
		}

		n, err := i.w.Write(wr)
		ret += n
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func (i *indenter) indent(n int) {
	i.prefix = strings.Repeat("  ", n)
}

// printTree writes an indented rendering of v, one node per line.
func printTree(i *indenter, v dbusvalue.Value, depth int) {
	i.indent(depth)
	switch n := v.(type) {
	case dbusvalue.Array:
		i.f("%s [%d]", n.SignatureDBus(), n.Len())
		for _, elem := range n.All() {
			printTree(i, elem, depth+1)
		}
	case dbusvalue.Struct:
		i.f("%s", n.SignatureDBus())
		for _, field := range n.All() {
			printTree(i, field, depth+1)
		}
	case dbusvalue.Dictionary:
		i.f("%s {%d}", n.SignatureDBus(), n.Len())
		for k, val := range n.All() {
			i.indent(depth + 1)
			i.f("%s %s =>", k.SignatureDBus(), leaf(k))
			printTree(i, val, depth+2)
		}
	case dbusvalue.Variant:
		i.f("v")
		printTree(i, n.Inner(), depth+1)
	case nil:
		i.f("<nil>")
	default:
		i.f("%s %s", n.SignatureDBus(), leaf(n))
	}
}

func leaf(v dbusvalue.Value) string {
	switch v := v.(type) {
	case dbusvalue.String, dbusvalue.ObjectPath, dbusvalue.Signature:
		return strconv.Quote(fmt.Sprint(v))
	default:
		return fmt.Sprint(v)
	}
}
