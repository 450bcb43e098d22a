package frame_test

import (
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/stampede/frame"
)

var _ = Describe("Frame serialisation", func() {
	It("serialises a heartbeat as a single newline", func() {
		Expect(frame.NewHeartbeat().Bytes()).To(Equal([]byte("\n")))
	})

	It("serialises command, headers, blank line, body and NUL", func() {
		f := frame.New(frame.CmdSend)
		f.SetHeader("destination", "/queue/a")
		f.Body = []byte("hello")

		Expect(string(f.Bytes())).To(Equal("SEND\ndestination:/queue/a\n\nhello\x00"))
	})

	It("escapes colon, newline, CR and backslash in 1.1+ mode", func() {
		f := frame.New(frame.CmdSend)
		f.SetHeader("a", "x:y\n")
		f.Body = []byte("hi")

		Expect(string(f.Bytes())).To(Equal("SEND\na:x\\cy\\n\n\nhi\x00"))

		f = frame.New(frame.CmdSend)
		f.SetHeader("k", "a\\b\rc")

		Expect(string(f.Bytes())).To(Equal("SEND\nk:a\\\\b\\rc\n\n\x00"))
	})

	It("escapes header names by the same rule", func() {
		f := frame.New(frame.CmdSend)
		f.SetHeader("we:ird", "v")

		Expect(string(f.Bytes())).To(Equal("SEND\nwe\\cird:v\n\n\x00"))
	})

	It("only escapes newline in legacy mode", func() {
		f := frame.New(frame.CmdSend)
		f.Legacy = true
		f.SetHeader("a", "x:y\n")

		Expect(string(f.Bytes())).To(Equal("SEND\na:x:y\\n\n\n\x00"))
	})

	Describe("content-length policy", func() {
		It("omits content-length for NUL-free bodies", func() {
			f := frame.New(frame.CmdSend)
			f.Body = []byte("plain")

			Expect(string(f.Bytes())).NotTo(ContainSubstring("content-length"))
		})

		It("emits content-length when the body contains a NUL byte", func() {
			f := frame.New(frame.CmdSend)
			f.Body = []byte("a\x00b")

			Expect(string(f.Bytes())).To(Equal("SEND\ncontent-length:3\n\na\x00b\x00"))
		})

		It("emits content-length when ExpectLengthHeader is set", func() {
			f := frame.New(frame.CmdSend)
			f.ExpectLengthHeader = true
			f.Body = []byte("four")

			Expect(string(f.Bytes())).To(ContainSubstring("content-length:4\n"))
		})

		It("replaces a caller-supplied content-length with the real length", func() {
			f := frame.New(frame.CmdSend)
			f.SetHeader("content-length", "9999")
			f.Body = []byte("\x00")

			Expect(string(f.Bytes())).To(Equal(fmt.Sprintf("SEND\ncontent-length:%d\n\n\x00\x00", 1)))
		})
	})
})

var _ = Describe("Headers", func() {
	It("preserves insertion order", func() {
		h := frame.NewHeaders()
		h.Set("b", "2")
		h.Set("a", "1")
		h.Set("c", "3")

		var names []string
		h.Each(func(name, _ string) {
			names = append(names, name)
		})

		Expect(names).To(Equal([]string{"b", "a", "c"}))
	})

	It("looks names up case-insensitively but preserves casing", func() {
		h := frame.NewHeaders()
		h.Set("Content-Length", "5")

		v, ok := h.Get("content-length")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("5"))

		var names []string
		h.Each(func(name, _ string) {
			names = append(names, name)
		})
		Expect(names).To(Equal([]string{"Content-Length"}))
	})

	It("replaces on Set and skips duplicates on SetIfAbsent", func() {
		h := frame.NewHeaders()
		h.Set("a", "1")
		h.Set("A", "2")
		Expect(h.Len()).To(Equal(1))

		v, _ := h.Get("a")
		Expect(v).To(Equal("2"))

		h.SetIfAbsent("a", "3")
		v, _ = h.Get("a")
		Expect(v).To(Equal("2"))
	})

	It("deletes headers", func() {
		h := frame.NewHeaders()
		h.Set("a", "1")
		h.Del("A")

		Expect(h.Has("a")).To(BeFalse())
		Expect(h.Len()).To(BeZero())
	})
})
