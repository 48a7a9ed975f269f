package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"scriptforge/internal/model"
)

func TestCacheStoreThenLookupHits(t *testing.T) {
	root := t.TempDir()
	c, err := Open(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tr := model.Transformer{Source: "package main\nfunc main() {}\n", Mode: model.GeneratorTemplate, Language: model.LanguageGo, FunctionName: "f"}
	test := model.GeneratedTest{Source: "package main\nfunc main() {}\n", FunctionName: "f", Language: model.LanguageGo}
	prov := model.Provenance{GeneratorMode: model.GeneratorTemplate, LessonCorpusVersion: "v1"}

	if _, err := c.Store("abc123", tr, test, prov); err != nil {
		t.Fatalf("store: %v", err)
	}

	entry, gotTr, gotTest, ok, err := c.Lookup("abc123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if gotTr.Source != tr.Source || gotTest.Source != test.Source {
		t.Fatalf("round-tripped bodies do not match")
	}
	if entry.FunctionName != "f" {
		t.Fatalf("unexpected function name %q", entry.FunctionName)
	}
}

func TestCacheLookupMissUnknownFingerprint(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _, _, ok, err := c.Lookup("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected miss for unknown fingerprint")
	}
}

func TestCacheLookupMissWhenBodyFileRemoved(t *testing.T) {
	root := t.TempDir()
	c, err := Open(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tr := model.Transformer{Source: "x", Language: model.LanguageGo, FunctionName: "f"}
	test := model.GeneratedTest{Source: "y", FunctionName: "f", Language: model.LanguageGo}
	entry, err := c.Store("fp1", tr, test, model.Provenance{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := os.Remove(filepath.Join(root, entry.ProgPath())); err != nil {
		t.Fatalf("remove prog: %v", err)
	}

	_, _, _, ok, err := c.Lookup("fp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected miss when body file is transiently absent")
	}
}

func TestCacheReopenReloadsIndex(t *testing.T) {
	root := t.TempDir()
	c1, err := Open(root)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tr := model.Transformer{Source: "x", Language: model.LanguageGo, FunctionName: "f"}
	test := model.GeneratedTest{Source: "y", FunctionName: "f", Language: model.LanguageGo}
	if _, err := c1.Store("fp1", tr, test, model.Provenance{}); err != nil {
		t.Fatalf("store: %v", err)
	}

	c2, err := Open(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_, _, _, ok, err := c2.Lookup("fp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry to survive reopen")
	}
}

func TestCacheConcurrentStoreIsSafe(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := model.Transformer{Source: "same", Language: model.LanguageGo, FunctionName: "dup"}
			test := model.GeneratedTest{Source: "same-test", FunctionName: "dup", Language: model.LanguageGo}
			if _, err := c.Store("dup-fp", tr, test, model.Provenance{}); err != nil {
				t.Errorf("store: %v", err)
			}
		}()
	}
	wg.Wait()

	_, _, _, ok, err := c.Lookup("dup-fp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected the racing stores to leave a valid entry behind")
	}
}
