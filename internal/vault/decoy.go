package vault

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/illarion/cloak/internal/crypto"
)

type decoyFile struct {
	name    string
	content func(now time.Time) string
}

var decoyFiles = []decoyFile{
	{"/Documents/todo.txt", func(now time.Time) string {
		items := []string{"renew car insurance", "call dentist", "pick up dry cleaning",
			"book flights for the wedding", "return library books", "fix the bathroom tap"}
		rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		var b strings.Builder
		for _, it := range items[:4] {
			fmt.Fprintf(&b, "- [ ] %s\n", it)
		}
		return b.String()
	}},
	{"/Documents/recipes/banana-bread.txt", func(time.Time) string {
		return "Banana bread\n\n3 ripe bananas\n75g melted butter\n150g sugar\n1 egg\n1 tsp vanilla\n" +
			"1 tsp baking soda\npinch of salt\n190g flour\n\nBake 60 minutes at 175C.\n"
	}},
	{"/Documents/budget.csv", func(now time.Time) string {
		var b strings.Builder
		b.WriteString("month,rent,groceries,utilities,transport\n")
		for i := 5; i >= 0; i-- {
			m := now.AddDate(0, -i, 0)
			fmt.Fprintf(&b, "%s,1150,%d,%d,%d\n", m.Format("2006-01"),
				280+rand.IntN(120), 90+rand.IntN(60), 60+rand.IntN(40))
		}
		return b.String()
	}},
	{"/Notes/passwords-old.txt", func(time.Time) string {
		return "wifi: see sticker under the router\nlibrary card pin changed, ask at desk\n"
	}},
	{"/Notes/books-to-read.md", func(time.Time) string {
		return "# Reading list\n\n* The Left Hand of Darkness\n* A Gentleman in Moscow\n* Thinking, Fast and Slow\n"
	}},
}

// newDecoyData builds the innocuous payload opened by a decoy password
func newDecoyData(key *crypto.KeyGuard, now time.Time) (*Data, error) {
	data := newData(now)
	for _, f := range decoyFiles {
		content := []byte(f.content(now))
		ct, err := encryptFile(key, f.name, content)
		if err != nil {
			return nil, err
		}
		modified := now.Add(-time.Duration(rand.IntN(90*24)) * time.Hour).Truncate(time.Second)
		data.Files[f.name] = &FileEntry{
			Ciphertext: ct,
			Size:       int64(len(content)),
			Created:    modified,
			Modified:   modified,
		}
	}
	return data, nil
}
