// Two writers sharing one index through the datastore. Both writers append
// new revisions of a one-byte counter at the same time; the store never
// merges, so afterwards every written revision is listed, and then the
// whole index is deleted and the user unregistered.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	nigori "github.com/asweigart123/nigori"
	"github.com/asweigart123/nigori/internal/auth"
)

const (
	iterations = 40
	delay      = 50 * time.Millisecond
)

func main() {
	log := logrus.New()

	dir, err := os.MkdirTemp("", "nigori-demo")
	if err != nil {
		log.Fatalf("creating data directory: %v", err)
	}
	defer os.RemoveAll(dir)

	db, err := nigori.Open(nigori.Config{DataDir: dir, Logger: log})
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	// One shared identity, as two devices of the same user would have.
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("generating key: %v", err)
	}
	publicHash := auth.PublicHash(publicKey)
	if !db.AddUser(publicKey, publicHash) {
		log.Fatal("registration failed")
	}
	user, err := db.GetUser(publicHash)
	if err != nil {
		log.Fatalf("looking up user: %v", err)
	}

	sharedIndex := []byte("shared-counter")

	var wg sync.WaitGroup
	writer := func(name string) {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			revision := []byte(fmt.Sprintf("%s-%03d", name, i))
			if !db.PutRecord(user, sharedIndex, revision, []byte{byte(i)}) {
				log.Warnf("%s: put of revision %03d rejected", name, i)
			}
			time.Sleep(delay)
		}
	}

	wg.Add(2)
	go writer("left")
	go writer("right")
	wg.Wait()

	revisions, err := db.GetRecord(user, sharedIndex)
	if err != nil {
		log.Fatalf("reading shared index: %v", err)
	}
	fmt.Printf("shared index holds %d revisions:\n", len(revisions))
	for _, rv := range revisions {
		fmt.Printf("  %s -> %d\n", rv.Revision, rv.Value[0])
	}

	if !db.DeleteRecord(user, sharedIndex) {
		log.Warn("nothing to delete")
	}
	if !db.DeleteUser(user) {
		log.Warn("unregister failed")
	}
}
