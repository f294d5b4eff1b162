package stubcache_test

import (
	"context"
	"sync"
	"testing"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/masm"
	"stubgen/internal/stubcache"
)

func TestKeyDependsOnInputs(t *testing.T) {
	base := stubcache.Key(codegen.StubSmiToDouble, layout.PPC64LinuxGNU(), codegen.Options{})
	if base != stubcache.Key(codegen.StubSmiToDouble, layout.PPC64LinuxGNU(), codegen.Options{}) {
		t.Fatalf("key is not deterministic")
	}
	// Zero registers select the defaults, so spelling them out is the same key.
	explicit := codegen.Options{Transition: codegen.DefaultTransitionRegs()}
	if base != stubcache.Key(codegen.StubSmiToDouble, layout.PPC64LinuxGNU(), explicit) {
		t.Fatalf("explicit default registers changed the key")
	}
	regs := codegen.DefaultTransitionRegs()
	regs.Temp = masm.R23
	others := []stubcache.Digest{
		stubcache.Key(codegen.StubDoubleToObject, layout.PPC64LinuxGNU(), codegen.Options{}),
		stubcache.Key(codegen.StubSmiToDouble, layout.PPC64LELinuxGNU(), codegen.Options{}),
		stubcache.Key(codegen.StubSmiToDouble, layout.PPC64LinuxGNU(), codegen.Options{DebugCode: true}),
		stubcache.Key(codegen.StubSmiToDouble, layout.PPC64LinuxGNU(), codegen.Options{Transition: regs}),
	}
	for i, k := range others {
		if k == base {
			t.Fatalf("variant %d collides with the base key", i)
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c, err := stubcache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	target := layout.PPCLinuxGNU()
	opts := codegen.Options{DebugCode: true}
	prog, err := codegen.Build(context.Background(), codegen.StubStringCharLoad, target, opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	key := stubcache.Key(codegen.StubStringCharLoad, target, opts)
	if _, ok, err := c.Get(key); err != nil || ok {
		t.Fatalf("empty cache Get = %v, %v", ok, err)
	}
	payload, err := stubcache.NewPayload(prog, 5)
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	if err := c.Put(key, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Stub != "string-char-load" || got.Target != target.Triple || !got.DebugCode || got.Scenarios != 5 {
		t.Fatalf("payload %+v", got)
	}
	back, err := got.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(back.Instrs) != len(prog.Instrs) || back.Target != target {
		t.Fatalf("decoded %d instructions for %s", len(back.Instrs), back.Target.Triple)
	}

	if err := c.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if _, ok, err := c.Get(key); err != nil || ok {
		t.Fatalf("Get after DropAll = %v, %v", ok, err)
	}
}

func TestDropAllWhileWriting(t *testing.T) {
	dir := t.TempDir()
	writer, err := stubcache.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// A second handle on the same directory stands in for another process.
	dropper, err := stubcache.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	target := layout.PPC64LinuxGNU()
	prog, err := codegen.Build(context.Background(), codegen.StubMapChange, target, codegen.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	payload, err := stubcache.NewPayload(prog, 2)
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	key := stubcache.Key(codegen.StubMapChange, target, codegen.Options{})

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- writer.Put(key, payload)
		}()
		go func() {
			defer wg.Done()
			errs <- dropper.DropAll()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Put/DropAll: %v", err)
		}
	}
	if err := writer.Put(key, payload); err != nil {
		t.Fatalf("Put after drops: %v", err)
	}
	if _, ok, err := dropper.Get(key); err != nil || !ok {
		t.Fatalf("Get through second handle = %v, %v", ok, err)
	}
}
