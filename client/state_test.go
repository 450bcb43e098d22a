package client_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/stampede/client"
	"github.com/luma/stampede/frame"
)

var _ = Describe("Stateful", func() {
	var (
		cl      *client.Client
		b       *fakeBroker
		frames  chan *frame.Frame
		session *client.Stateful
	)

	// inject parses broker bytes into the connection buffer without a
	// socket round-trip, the way frames pile up behind a receipt wait.
	inject := func(raw string) {
		cl.Connection().Parser().AddData([]byte(raw))
	}

	subscribe := func() string {
		id, err := session.Subscribe(client.SubscribeOptions{Destination: "/queue/a"})
		ExpectWithOffset(1, err).To(Succeed())
		ExpectWithOffset(1, nextFrame(frames).Command).To(Equal(frame.CmdSubscribe))
		return id
	}

	begin := func() string {
		ExpectWithOffset(1, session.Begin()).To(Succeed())

		f := nextFrame(frames)
		ExpectWithOffset(1, f.Command).To(Equal(frame.CmdBegin))

		tx, _ := f.Header(frame.HdrTransaction)
		ExpectWithOffset(1, tx).NotTo(BeEmpty())
		return tx
	}

	expectInvalidState := func(err error, op string) {
		var ise *client.InvalidStateError
		ExpectWithOffset(1, errors.As(err, &ise)).To(BeTrue(), "got %v", err)
		ExpectWithOffset(1, ise.Op).To(Equal(op))
	}

	expectDraining := func(err error, op string) {
		var de *client.DrainingError
		ExpectWithOffset(1, errors.As(err, &de)).To(BeTrue(), "got %v", err)
		ExpectWithOffset(1, de.Op).To(Equal(op))
	}

	BeforeEach(func() {
		cl, b = newSession(client.Options{Async: true, ClientID: "client-7"})
		connectSession(cl, b, connectedV12)
		frames = sink(b)
		session = client.NewStateful(cl, nil)
	})

	AfterEach(func() {
		b.close()
	})

	Describe("producer state", func() {
		It("is the initial state", func() {
			Expect(session.State()).To(Equal(client.StateProducer))
			Expect(session.Subscriptions()).To(BeEmpty())
		})

		It("denies the consumer and transaction verbs", func() {
			msg := frame.New(frame.CmdMessage)
			msg.SetHeader(frame.HdrMessageID, "m-1")

			expectInvalidState(session.Ack(msg), "ack")
			expectInvalidState(session.Nack(msg, nil), "nack")
			expectInvalidState(session.Unsubscribe(""), "unsubscribe")
			expectInvalidState(session.Commit(), "commit")
			expectInvalidState(session.Abort(), "abort")

			_, err := session.Read()
			expectInvalidState(err, "read")
		})

		It("sends without a transaction header", func() {
			Expect(session.Send("/queue/a", []byte("x"), nil)).To(Succeed())

			f := nextFrame(frames)
			Expect(f.Command).To(Equal(frame.CmdSend))
			Expect(f.Headers.Has(frame.HdrTransaction)).To(BeFalse())
		})
	})

	Describe("consumer state", func() {
		It("is entered by subscribing and left by unsubscribing", func() {
			id, err := session.Subscribe(client.SubscribeOptions{Destination: "/queue/a"})
			Expect(err).To(Succeed())
			Expect(id).NotTo(BeEmpty())
			Expect(session.State()).To(Equal(client.StateConsumer))

			f := nextFrame(frames)
			Expect(f.Command).To(Equal(frame.CmdSubscribe))

			sentID, _ := f.Header(frame.HdrID)
			Expect(sentID).To(Equal(id))

			ack, _ := f.Header(frame.HdrAck)
			Expect(ack).To(Equal("auto"))

			subs := session.Subscriptions()
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].Destination).To(Equal("/queue/a"))

			Expect(session.Unsubscribe(id)).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdUnsubscribe))
			Expect(session.State()).To(Equal(client.StateProducer))
		})

		It("reads messages and acknowledges them", func() {
			id := subscribe()

			inject("MESSAGE\nmessage-id:m-1\nsubscription:" + id + "\n\nhello\x00")

			msg, err := session.Read()
			Expect(err).To(Succeed())
			Expect(msg).NotTo(BeNil())
			Expect(msg.Body).To(Equal([]byte("hello")))

			Expect(session.Ack(msg.Frame)).To(Succeed())

			f := nextFrame(frames)
			Expect(f.Command).To(Equal(frame.CmdAck))
			Expect(f.Headers.Has(frame.HdrTransaction)).To(BeFalse())
		})

		It("accepts an empty unsubscribe id only with a single subscription", func() {
			subscribe()
			subscribe()

			err := session.Unsubscribe("")
			var ise *client.InvalidStateError
			Expect(errors.As(err, &ise)).To(BeTrue())

			Expect(session.Subscriptions()).To(HaveLen(2))
		})

		It("rejects unsubscribing an unknown id", func() {
			subscribe()

			err := session.Unsubscribe("999")
			Expect(errors.Is(err, client.ErrUnknownSubscription)).To(BeTrue())
			Expect(session.State()).To(Equal(client.StateConsumer))
		})
	})

	Describe("draining", func() {
		It("drains the backlog FIFO and then becomes a producer", func() {
			id := subscribe()

			inject("MESSAGE\nmessage-id:m-1\nsubscription:" + id + "\n\none\x00" +
				"MESSAGE\nmessage-id:m-2\nsubscription:" + id + "\n\ntwo\x00")

			Expect(session.Unsubscribe(id)).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdUnsubscribe))
			Expect(session.State()).To(Equal(client.StateDrainingConsumer))

			_, err := session.Subscribe(client.SubscribeOptions{Destination: "/queue/b"})
			expectDraining(err, "subscribe")
			expectDraining(session.Begin(), "begin")
			expectDraining(session.Commit(), "commit")

			msg, err := session.Read()
			Expect(err).To(Succeed())
			Expect(msg.Body).To(Equal([]byte("one")))

			// The backlog can still be acknowledged while draining.
			Expect(session.Ack(msg.Frame)).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdAck))

			msg, err = session.Read()
			Expect(err).To(Succeed())
			Expect(msg.Body).To(Equal([]byte("two")))

			msg, err = session.Read()
			Expect(err).To(Succeed())
			Expect(msg).To(BeNil())
			Expect(session.State()).To(Equal(client.StateProducer))
		})

		It("skips draining when nothing is buffered", func() {
			id := subscribe()

			Expect(session.Unsubscribe(id)).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdUnsubscribe))
			Expect(session.State()).To(Equal(client.StateProducer))
		})
	})

	Describe("producer transactions", func() {
		It("stamps sends with the transaction and commits back to producer", func() {
			tx := begin()
			Expect(session.State()).To(Equal(client.StateProducerInTx))

			Expect(session.Send("/queue/a", []byte("x"), nil)).To(Succeed())

			f := nextFrame(frames)
			sentTx, _ := f.Header(frame.HdrTransaction)
			Expect(sentTx).To(Equal(tx))

			Expect(session.Commit()).To(Succeed())

			f = nextFrame(frames)
			Expect(f.Command).To(Equal(frame.CmdCommit))

			committedTx, _ := f.Header(frame.HdrTransaction)
			Expect(committedTx).To(Equal(tx))

			Expect(session.State()).To(Equal(client.StateProducer))
		})

		It("aborts back to producer", func() {
			begin()

			Expect(session.Abort()).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdAbort))
			Expect(session.State()).To(Equal(client.StateProducer))
		})

		It("rejects nesting transactions", func() {
			begin()
			expectInvalidState(session.Begin(), "begin")
		})

		It("keeps the transaction across subscribe", func() {
			tx := begin()

			id := subscribe()
			Expect(session.State()).To(Equal(client.StateConsumerInTx))

			inject("MESSAGE\nmessage-id:m-1\nsubscription:" + id + "\n\nhello\x00")

			msg, err := session.Read()
			Expect(err).To(Succeed())

			Expect(session.Ack(msg.Frame)).To(Succeed())

			f := nextFrame(frames)
			ackTx, _ := f.Header(frame.HdrTransaction)
			Expect(ackTx).To(Equal(tx))
		})
	})

	Describe("consumer transactions", func() {
		It("commits back to consumer, keeping the subscriptions", func() {
			subscribe()

			begin()
			Expect(session.State()).To(Equal(client.StateConsumerInTx))

			Expect(session.Commit()).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdCommit))

			Expect(session.State()).To(Equal(client.StateConsumer))
			Expect(session.Subscriptions()).To(HaveLen(1))
		})

		It("unsubscribing the last subscription keeps the transaction", func() {
			id := subscribe()
			begin()

			Expect(session.Unsubscribe(id)).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdUnsubscribe))
			Expect(session.State()).To(Equal(client.StateProducerInTx))

			Expect(session.Commit()).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdCommit))
			Expect(session.State()).To(Equal(client.StateProducer))
		})

		It("drains inside the transaction before commit becomes legal", func() {
			id := subscribe()
			tx := begin()

			inject("MESSAGE\nmessage-id:m-1\nsubscription:" + id + "\n\nlast one\x00")

			Expect(session.Unsubscribe(id)).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdUnsubscribe))
			Expect(session.State()).To(Equal(client.StateDrainingConsumerInTx))

			expectDraining(session.Send("/queue/a", nil, nil), "send")
			expectDraining(session.Commit(), "commit")

			msg, err := session.Read()
			Expect(err).To(Succeed())
			Expect(msg.Body).To(Equal([]byte("last one")))

			Expect(session.Ack(msg.Frame)).To(Succeed())

			f := nextFrame(frames)
			ackTx, _ := f.Header(frame.HdrTransaction)
			Expect(ackTx).To(Equal(tx))

			msg, err = session.Read()
			Expect(err).To(Succeed())
			Expect(msg).To(BeNil())
			Expect(session.State()).To(Equal(client.StateProducerInTx))

			Expect(session.Commit()).To(Succeed())
			Expect(nextFrame(frames).Command).To(Equal(frame.CmdCommit))
			Expect(session.State()).To(Equal(client.StateProducer))
		})
	})
})

var _ = Describe("Subscriptions", func() {
	It("matches frames to subscriptions by the subscription header", func() {
		subs := client.NewSubscriptions()
		subs.Add(&client.Subscription{ID: "1", Destination: "/queue/a"})
		subs.Add(&client.Subscription{ID: "2", Destination: "/queue/b"})

		f := frame.New(frame.CmdMessage)
		f.SetHeader(frame.HdrSubscription, "2")

		sub := subs.ByFrame(f)
		Expect(sub).NotTo(BeNil())
		Expect(sub.Destination).To(Equal("/queue/b"))

		// Frames without the header stay deliverable, just unattributed.
		Expect(subs.ByFrame(frame.New(frame.CmdMessage))).To(BeNil())
	})
})
