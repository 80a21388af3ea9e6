// Package mempool keeps reusable buffers for the per-image hot paths: the
// detector input tensor and the encoded crop.
package mempool

import (
	"bytes"
	"sync"
)

// Tensor buffers are bucketed in multiples of this many elements.
const tensorStep = 1024

// Encode buffers that grew beyond this are dropped instead of pooled.
const maxPooledBuffer = 16 << 20

var (
	tensorPools sync.Map // key: size class (int), value: *sync.Pool
	bufferPool  = sync.Pool{New: func() any { return new(bytes.Buffer) }}
)

// sizeClass rounds n up to the next multiple of tensorStep, never below one step.
func sizeClass(n int) int {
	if n <= tensorStep {
		return tensorStep
	}
	return (n + tensorStep - 1) / tensorStep * tensorStep
}

func tensorPool(cls int) *sync.Pool {
	if p, ok := tensorPools.Load(cls); ok {
		return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
	}
	p, _ := tensorPools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// GetFloat32 returns a []float32 of length n. The contents are not zeroed.
// Hand it back with PutFloat32 once nothing references it any more.
func GetFloat32(n int) []float32 {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp, _ := tensorPool(cls).Get().(*[]float32)
	if bp == nil || cap(*bp) < cls {
		buf := make([]float32, cls)
		return buf[:n]
	}
	return (*bp)[:n]
}

// PutFloat32 returns a buffer obtained from GetFloat32. Nil and buffers that
// do not fill a size class are ignored.
func PutFloat32(buf []float32) {
	if cap(buf) < tensorStep {
		return
	}
	// A buffer only serves requests up to its own capacity, so it goes into
	// the largest class it can fill.
	cls := cap(buf) / tensorStep * tensorStep
	full := buf[:cls]
	tensorPool(cls).Put(&full)
}

// GetBuffer returns an empty bytes.Buffer for encoding a crop.
func GetBuffer() *bytes.Buffer {
	buf, _ := bufferPool.Get().(*bytes.Buffer)
	if buf == nil {
		return new(bytes.Buffer)
	}
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer obtained from GetBuffer. The caller must not
// keep references to its bytes.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
