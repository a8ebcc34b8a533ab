package buddy

import (
	"fmt"
	"unsafe"
)

func Example_basicUsage() {
	region := make([]byte, 64)
	base := unsafe.Pointer(&region[0])

	pool, err := NewWithStorage(base, 6) // 64-byte region
	if err != nil {
		fmt.Println(err)
		return
	}

	p, granted := pool.Alloc(10)
	fmt.Println(granted)
	pool.Free(p)
	// Output:
	// 16
}

func Example_observer() {
	region := make([]byte, 16)
	base := unsafe.Pointer(&region[0])

	words := make([]uint32, RequiredWords(31))
	bv, err := NewBitvector(words, 31)
	if err != nil {
		fmt.Println(err)
		return
	}
	pool, err := New(base, 4, bv, WithObserver(func(ev Event) {
		fmt.Println(ev)
	}), WithLabel("demo"))
	if err != nil {
		fmt.Println(err)
		return
	}

	p, _ := pool.Alloc(8)
	pool.Free(p)
	// Output:
	// demo: alloc requested=8 granted=8
	// demo: free granted=8
}
