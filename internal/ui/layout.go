package ui

func DetermineLayoutMode(cols, rows int) LayoutMode {
	if cols < 60 || rows < 20 {
		return LayoutTooSmall
	}
	if cols >= 100 && rows >= 26 {
		return LayoutWide
	}
	return LayoutMedium
}

// cellWidth is the rendered width of one grid cell including its gutter.
const cellWidth = 6

func gridWidth(gridSize int) int {
	return gridSize*cellWidth + 1
}
