package signalingtest

import (
	"fmt"
	"math/rand/v2"
)

var adjectives = []string{
	"amber", "brisk", "calm", "dusty", "eager", "fuzzy", "gentle", "hollow", "icy", "jolly",
	"keen", "lucky", "mellow", "nimble", "odd", "proud", "quiet", "rapid", "sunny", "tidy",
}

var animals = []string{
	"kitten", "panda", "koala", "otter", "hedgehog", "ferret", "beaver", "narwhal", "penguin", "toucan",
	"parrot", "lamb", "fox", "raccoon", "seahorse", "dolphin", "robin", "hamster", "mole", "fawn",
}

// roomID returns a readable id such as "brisk-otter-42" that is not in use.
func roomID(taken func(string) bool) string {
	for {
		id := fmt.Sprintf("%s-%s-%d",
			adjectives[rand.IntN(len(adjectives))],
			animals[rand.IntN(len(animals))],
			rand.IntN(100))
		if !taken(id) {
			return id
		}
	}
}
