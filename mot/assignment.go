package mot

import (
	"sort"

	"github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"
)

// linearAssignment solves minimum-cost matching between rows (tracks) and columns
// (detections). Pairs with cost above thresh are never matched.
func linearAssignment(costMatrix [][]float64, nRows, nCols int, thresh float64, algorithm MatchingAlgorithm) (matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {
	if nRows == 0 || nCols == 0 {
		for i := 0; i < nRows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}
		for j := 0; j < nCols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}
		return matches, unmatchedRows, unmatchedCols, nil
	}

	var pairs [][2]int
	switch algorithm {
	case MatchingAlgorithmHungarian:
		pairs = performHungarianMatching(costMatrix, nRows, nCols, thresh)
	case MatchingAlgorithmGreedy:
		pairs = performGreedyMatching(costMatrix, nRows, nCols, thresh)
	default:
		rowsol, _, lapErr := execLapjv(costMatrix, thresh)
		if lapErr != nil {
			return nil, nil, nil, errors.Wrap(lapErr, "can't solve assignment")
		}
		for i, j := range rowsol {
			if j >= 0 {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}

	// hungarian result comes from map iteration, greedy result is ordered by cost
	sort.Slice(pairs, func(a, b int) bool { return pairs[a][0] < pairs[b][0] })

	rowMatched := make([]bool, nRows)
	colMatched := make([]bool, nCols)
	for _, pair := range pairs {
		if costMatrix[pair[0]][pair[1]] > thresh {
			continue
		}
		matches = append(matches, pair)
		rowMatched[pair[0]] = true
		colMatched[pair[1]] = true
	}
	for i, ok := range rowMatched {
		if !ok {
			unmatchedRows = append(unmatchedRows, i)
		}
	}
	for j, ok := range colMatched {
		if !ok {
			unmatchedCols = append(unmatchedCols, j)
		}
	}
	return matches, unmatchedRows, unmatchedCols, nil
}

// performHungarianMatching maximizes similarity (1 - cost) over zero-padded square matrix.
// Gated pairs get zero similarity so they do not compete with valid ones.
func performHungarianMatching(costMatrix [][]float64, nRows, nCols int, thresh float64) [][2]int {
	paddedSize := maxInt(nRows, nCols)
	paddedMatrix := make([][]float64, paddedSize)
	for i := 0; i < paddedSize; i++ {
		paddedMatrix[i] = make([]float64, paddedSize)
	}
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			if costMatrix[i][j] <= thresh {
				// shifted by one so valid zero-similarity pairs still beat padding
				paddedMatrix[i][j] = 2 - costMatrix[i][j]
			}
		}
	}
	assignmentsMap := hungarian.SolveMax(paddedMatrix)
	rowMatched := make([]bool, nRows)
	colMatched := make([]bool, nCols)
	matches := make([][2]int, 0, len(assignmentsMap))
	for trackIndex, rowMap := range assignmentsMap {
		for detectionIndex := range rowMap {
			if trackIndex >= nRows || detectionIndex >= nCols || paddedMatrix[trackIndex][detectionIndex] <= 0 {
				continue
			}
			if rowMatched[trackIndex] || colMatched[detectionIndex] {
				continue
			}
			matches = append(matches, [2]int{trackIndex, detectionIndex})
			rowMatched[trackIndex] = true
			colMatched[detectionIndex] = true
		}
	}
	return append(matches, completeMatching(costMatrix, rowMatched, colMatched, thresh)...)
}

// completeMatching greedily pairs rows and columns left free by SolveMax.
// SolveMax may leave feasible pairs unassigned.
func completeMatching(costMatrix [][]float64, rowMatched, colMatched []bool, thresh float64) [][2]int {
	freeRows := make([]int, 0)
	for i, ok := range rowMatched {
		if !ok {
			freeRows = append(freeRows, i)
		}
	}
	freeCols := make([]int, 0)
	for j, ok := range colMatched {
		if !ok {
			freeCols = append(freeCols, j)
		}
	}
	if len(freeRows) == 0 || len(freeCols) == 0 {
		return nil
	}
	sub := make([][]float64, len(freeRows))
	for i, row := range freeRows {
		sub[i] = make([]float64, len(freeCols))
		for j, col := range freeCols {
			sub[i][j] = costMatrix[row][col]
		}
	}
	pairs := performGreedyMatching(sub, len(freeRows), len(freeCols), thresh)
	for k, pair := range pairs {
		pairs[k] = [2]int{freeRows[pair[0]], freeCols[pair[1]]}
	}
	return pairs
}

// performGreedyMatching repeatedly takes the cheapest pair whose row and column are both free
func performGreedyMatching(costMatrix [][]float64, nRows, nCols int, thresh float64) [][2]int {
	h := make(costHeap, 0, nRows*nCols)
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			if costMatrix[i][j] <= thresh {
				h.Push(costPair{row: i, col: j, cost: costMatrix[i][j]})
			}
		}
	}
	matchedRows := make(map[int]struct{})
	matchedCols := make(map[int]struct{})
	matches := make([][2]int, 0)
	for h.Len() > 0 {
		pair := h.Pop()
		if _, found := matchedRows[pair.row]; found {
			continue
		}
		if _, found := matchedCols[pair.col]; found {
			continue
		}
		matches = append(matches, [2]int{pair.row, pair.col})
		matchedRows[pair.row] = struct{}{}
		matchedCols[pair.col] = struct{}{}
	}
	return matches
}
