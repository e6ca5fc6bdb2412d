// Package generator produces board content: categories with titles and
// ordered clue cells carrying value, clue text, and answer. The game core
// consumes the result shape only; where the content comes from (a built-in
// bank or an LLM) is decided by configuration.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/quizbuzz/quizbuzz/internal/game"
)

// cellValue returns the monetary value of a clue row, cheapest row first
func cellValue(clueIdx int) int {
	return (clueIdx + 1) * 200
}

type bankEntry struct {
	title string
	clues [][2]string // clue text, answer
}

// bank is the built-in question set used when no LLM backend is configured.
// Each category carries five clues, easiest first.
var bank = []bankEntry{
	{
		title: "World Capitals",
		clues: [][2]string{
			{"This city on the Seine is the capital of France", "Paris"},
			{"Canberra is the capital of this country, not Sydney", "Australia"},
			{"This Andean capital is the highest in the world", "La Paz"},
			{"Astana was renamed for this Kazakh president in 2019", "Nursultan Nazarbayev"},
			{"This capital moved from Lagos in 1991", "Abuja"},
		},
	},
	{
		title: "The Periodic Table",
		clues: [][2]string{
			{"This element with symbol O keeps you breathing", "Oxygen"},
			{"Au is the symbol for this precious metal", "Gold"},
			{"This liquid metal was once called quicksilver", "Mercury"},
			{"Element 94, named for a demoted planet", "Plutonium"},
			{"This synthetic element honors the creator of the table itself", "Mendelevium"},
		},
	},
	{
		title: "Classic Literature",
		clues: [][2]string{
			{"This Melville novel opens with 'Call me Ishmael'", "Moby-Dick"},
			{"Author of Pride and Prejudice", "Jane Austen"},
			{"This Russian wrote both War and Peace and Anna Karenina", "Leo Tolstoy"},
			{"The one-eyed giant blinded by Odysseus", "Polyphemus"},
			{"This 1759 Voltaire satire follows an incurable optimist", "Candide"},
		},
	},
	{
		title: "Space Exploration",
		clues: [][2]string{
			{"First human to walk on the Moon", "Neil Armstrong"},
			{"This space telescope launched in 1990 and still orbits today", "Hubble"},
			{"The first artificial satellite, launched in 1957", "Sputnik 1"},
			{"This NASA rover landed in Jezero Crater in 2021", "Perseverance"},
			{"The only spacecraft to have visited Uranus and Neptune", "Voyager 2"},
		},
	},
	{
		title: "Inventions",
		clues: [][2]string{
			{"Alexander Graham Bell patented this in 1876", "The telephone"},
			{"This fastener was inspired by burrs sticking to a dog's fur", "Velcro"},
			{"Tim Berners-Lee invented this at CERN in 1989", "The World Wide Web"},
			{"This preservation process is named for a French microbiologist", "Pasteurization"},
			{"Her frequency-hopping patent underpins modern Wi-Fi", "Hedy Lamarr"},
		},
	},
	{
		title: "Rivers of the World",
		clues: [][2]string{
			{"This Egyptian river is the longest in Africa", "The Nile"},
			{"The Amazon empties into this ocean", "The Atlantic"},
			{"This river forms much of the border between the US and Mexico", "The Rio Grande"},
			{"Budapest, Vienna, and Belgrade all sit on this river", "The Danube"},
			{"This Siberian river flows north into the Kara Sea", "The Yenisei"},
		},
	},
	{
		title: "Famous Paintings",
		clues: [][2]string{
			{"Da Vinci portrait with a famously subtle smile", "Mona Lisa"},
			{"This Dutchman painted The Starry Night", "Vincent van Gogh"},
			{"Munch's anguished figure on a bridge", "The Scream"},
			{"This Picasso mural depicts the bombing of a Basque town", "Guernica"},
			{"Vermeer's girl wears this piece of jewelry", "A pearl earring"},
		},
	},
	{
		title: "Ancient History",
		clues: [][2]string{
			{"This empire built the Colosseum", "Rome"},
			{"The Great Pyramid was built for this pharaoh", "Khufu"},
			{"This city-state of soldiers fought Athens in the Peloponnesian War", "Sparta"},
			{"Hammurabi ruled this Mesopotamian city", "Babylon"},
			{"This battle of 331 BC broke the Persian Empire", "Gaugamela"},
		},
	},
}

// BankGenerator serves boards from the built-in question bank. Category
// order is shuffled per board; a seeded source gives deterministic boards
// for tests.
type BankGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBankGenerator creates a bank generator seeded from seed
func NewBankGenerator(seed int64) *BankGenerator {
	return &BankGenerator{rng: rand.New(rand.NewSource(seed))}
}

// GenerateBoard implements game.Generator
func (bg *BankGenerator) GenerateBoard(_ context.Context, numCategories, numClues int) (*game.Board, error) {
	if numCategories <= 0 || numClues <= 0 {
		return nil, fmt.Errorf("board dimensions must be positive, got %dx%d", numCategories, numClues)
	}
	if numCategories > len(bank) {
		return nil, fmt.Errorf("bank holds %d categories, %d requested", len(bank), numCategories)
	}
	if maxClues := len(bank[0].clues); numClues > maxClues {
		return nil, fmt.Errorf("bank holds %d clues per category, %d requested", maxClues, numClues)
	}

	bg.mu.Lock()
	order := bg.rng.Perm(len(bank))
	bg.mu.Unlock()

	board := &game.Board{Categories: make([]game.Category, numCategories)}
	for i := 0; i < numCategories; i++ {
		entry := bank[order[i]]
		clues := make([]game.Clue, numClues)
		for j := 0; j < numClues; j++ {
			clues[j] = game.Clue{
				Value:  cellValue(j),
				Text:   entry.clues[j][0],
				Answer: entry.clues[j][1],
			}
		}
		board.Categories[i] = game.Category{Title: entry.title, Clues: clues}
	}
	return board, nil
}
