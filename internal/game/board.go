package game

// Clue is one cell on the board. The answer never leaves the server; board
// projections expose only value and claimed state until the cell is picked.
type Clue struct {
	Value   int
	Text    string
	Answer  string
	Claimed bool
}

// Category is an ordered column of clues under one title
type Category struct {
	Title string
	Clues []Clue
}

// Board is the shared game board: ordered categories by ordered clue cells
type Board struct {
	Categories []Category
}

// Cell returns the clue at the given coordinates, nil when out of range
func (b *Board) Cell(categoryIdx, clueIdx int) *Clue {
	if categoryIdx < 0 || categoryIdx >= len(b.Categories) {
		return nil
	}
	cat := &b.Categories[categoryIdx]
	if clueIdx < 0 || clueIdx >= len(cat.Clues) {
		return nil
	}
	return &cat.Clues[clueIdx]
}

// Exhausted reports whether every cell has been claimed
func (b *Board) Exhausted() bool {
	for _, cat := range b.Categories {
		for _, clue := range cat.Clues {
			if !clue.Claimed {
				return false
			}
		}
	}
	return true
}

// CellInfo is the client-visible projection of one cell
type CellInfo struct {
	Value   int
	Claimed bool
}

// CategoryInfo is the client-visible projection of one category
type CategoryInfo struct {
	Title string
	Cells []CellInfo
}

// Info projects the board down to what every client may see
func (b *Board) Info() []CategoryInfo {
	out := make([]CategoryInfo, len(b.Categories))
	for i, cat := range b.Categories {
		cells := make([]CellInfo, len(cat.Clues))
		for j, clue := range cat.Clues {
			cells[j] = CellInfo{Value: clue.Value, Claimed: clue.Claimed}
		}
		out[i] = CategoryInfo{Title: cat.Title, Cells: cells}
	}
	return out
}

// Titles returns the category titles in board order
func (b *Board) Titles() []string {
	titles := make([]string, len(b.Categories))
	for i, cat := range b.Categories {
		titles[i] = cat.Title
	}
	return titles
}
