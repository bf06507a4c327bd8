package dbusvalue_test

import (
	"fmt"

	"github.com/danderson/dbusvalue"
)

func ExampleEncode() {
	type Point struct {
		X, Y  int32
		Label string
	}

	v, err := dbusvalue.Encode(Point{1, 2, "origin"})
	if err != nil {
		panic(err)
	}
	fmt.Println(v.SignatureDBus())
	for i, f := range v.(dbusvalue.Struct).All() {
		fmt.Println(i, f.SignatureDBus(), f)
	}

	// Output:
	// (iis)
	// 0 i 1
	// 1 i 2
	// 2 s origin
}

func ExampleDecode() {
	type Record struct {
		ID   uint64
		Tags []string
	}

	v := dbusvalue.NewStruct(
		dbusvalue.Uint32(7),
		dbusvalue.NewArray(dbusvalue.String("a"), dbusvalue.String("b")))

	r, err := dbusvalue.Decode[Record](v)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%+v\n", r)

	// Output:
	// {ID:7 Tags:[a b]}
}

func ExampleEncode_vardict() {
	type Props struct {
		Name  string         `dbus:"key=name"`
		Extra map[string]any `dbus:"vardict"`
	}

	v, err := dbusvalue.Encode(Props{
		Name:  "eth0",
		Extra: map[string]any{"mtu": uint16(1500)},
	})
	if err != nil {
		panic(err)
	}

	want := dbusvalue.NewStruct(dbusvalue.NewDictionary(
		dbusvalue.DictEntry{Key: dbusvalue.String("mtu"), Value: dbusvalue.NewVariant(dbusvalue.Uint16(1500))},
		dbusvalue.DictEntry{Key: dbusvalue.String("name"), Value: dbusvalue.NewVariant(dbusvalue.String("eth0"))},
	))
	fmt.Println(v.SignatureDBus())
	fmt.Println(dbusvalue.Equal(v, want))

	// Output:
	// (a{sv})
	// true
}

func ExampleNewDecoder() {
	d := dbusvalue.NewDecoder(dbusvalue.NewArray(dbusvalue.Byte(3), dbusvalue.Byte(4)))

	sum := 0
	err := d.Array(func(n int) error {
		for i := range n {
			err := d.ArrayElem(i, func(d *dbusvalue.Decoder) error {
				b, err := d.Uint16()
				sum += int(b)
				return err
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(sum)

	// Output:
	// 7
}
