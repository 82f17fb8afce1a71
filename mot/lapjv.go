package mot

import (
	"github.com/pkg/errors"
)

// largeCost is upper bound for reduced costs
const largeCost = 1000000.0

// lapjvInternal solves dense square linear assignment problem
// (Jonker-Volgenant). x[i] is column of row i, y[j] is row of column j.
func lapjvInternal(n int, cost [][]float64, x, y []int) (int, error) {
	freeRows := make([]int, n)
	v := make([]float64, n)

	ret := ccrrtDense(n, cost, freeRows, x, y, v)
	i := 0
	for ret > 0 && i < 2 {
		ret = carrDense(n, cost, ret, freeRows, x, y, v)
		i++
	}
	if ret > 0 {
		if err := caDense(n, cost, ret, freeRows, x, y, v); err != nil {
			return ret, err
		}
		ret = 0
	}
	return ret, nil
}

// ccrrtDense performs column-reduction and reduction transfer
func ccrrtDense(n int, cost [][]float64, freeRows, x, y []int, v []float64) int {
	unique := make([]bool, n)
	for i := 0; i < n; i++ {
		x[i] = -1
		v[i] = largeCost
		y[i] = 0
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := cost[i][j]
			if c < v[j] {
				v[j] = c
				y[j] = i
			}
		}
	}
	for i := 0; i < n; i++ {
		unique[i] = true
	}
	j := n
	for j > 0 {
		j--
		i := y[j]
		if x[i] < 0 {
			x[i] = j
		} else {
			unique[i] = false
			y[j] = -1
		}
	}
	nFreeRows := 0
	for i := 0; i < n; i++ {
		if x[i] < 0 {
			freeRows[nFreeRows] = i
			nFreeRows++
		} else if unique[i] {
			j := x[i]
			minVal := largeCost
			for j2 := 0; j2 < n; j2++ {
				if j2 == j {
					continue
				}
				c := cost[i][j2] - v[j2]
				if c < minVal {
					minVal = c
				}
			}
			v[j] -= minVal
		}
	}
	return nFreeRows
}

// carrDense performs augmenting row reduction
func carrDense(n int, cost [][]float64, nFreeRows int, freeRows, x, y []int, v []float64) int {
	current := 0
	newFreeRows := 0
	rrCnt := 0
	for current < nFreeRows {
		rrCnt++
		freeI := freeRows[current]
		current++

		j1 := 0
		v1 := cost[freeI][0] - v[0]
		j2 := -1
		v2 := largeCost
		for j := 1; j < n; j++ {
			c := cost[freeI][j] - v[j]
			if c < v2 {
				if c >= v1 {
					v2 = c
					j2 = j
				} else {
					v2 = v1
					v1 = c
					j2 = j1
					j1 = j
				}
			}
		}

		i0 := y[j1]
		v1New := v[j1] - (v2 - v1)
		v1Lowers := v1New < v[j1]
		if rrCnt < current*n {
			if v1Lowers {
				v[j1] = v1New
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = y[j2]
			}
			if i0 >= 0 {
				if v1Lowers {
					current--
					freeRows[current] = i0
				} else {
					freeRows[newFreeRows] = i0
					newFreeRows++
				}
			}
		} else if i0 >= 0 {
			freeRows[newFreeRows] = i0
			newFreeRows++
		}
		x[freeI] = j1
		y[j1] = freeI
	}
	return newFreeRows
}

// findDense moves columns with minimal d[j] onto the SCAN list
func findDense(n int, lo int, d []float64, cols []int) int {
	hi := lo + 1
	mind := d[cols[lo]]
	for k := hi; k < n; k++ {
		j := cols[k]
		if d[j] <= mind {
			if d[j] < mind {
				hi = lo
				mind = d[j]
			}
			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}
	return hi
}

// scanDense tries to decrease d of TODO columns using SCAN columns
func scanDense(n int, cost [][]float64, lo, hi *int, d []float64, cols, pred, y []int, v []float64) int {
	for *lo != *hi {
		j := cols[*lo]
		*lo++
		i := y[j]
		mind := d[j]
		h := cost[i][j] - v[j] - mind
		for k := *hi; k < n; k++ {
			j = cols[k]
			credIJ := cost[i][j] - v[j] - h
			if credIJ < d[j] {
				d[j] = credIJ
				pred[j] = i
				if credIJ == mind {
					if y[j] < 0 {
						return j
					}
					cols[k] = cols[*hi]
					cols[*hi] = j
					*hi++
				}
			}
		}
	}
	return -1
}

// findPathDense is a single iteration of modified Dijkstra shortest path
func findPathDense(n int, cost [][]float64, startI int, y []int, v []float64, pred []int) int {
	lo, hi := 0, 0
	finalJ := -1
	nReady := 0
	cols := make([]int, n)
	d := make([]float64, n)
	for i := 0; i < n; i++ {
		cols[i] = i
		pred[i] = startI
		d[i] = cost[startI][i] - v[i]
	}
	for finalJ == -1 {
		// No columns left on the SCAN list
		if lo == hi {
			nReady = lo
			hi = findDense(n, lo, d, cols)
			for k := lo; k < hi; k++ {
				j := cols[k]
				if y[j] < 0 {
					finalJ = j
				}
			}
		}
		if finalJ == -1 {
			finalJ = scanDense(n, cost, &lo, &hi, d, cols, pred, y, v)
		}
	}
	mind := d[cols[lo]]
	for k := 0; k < nReady; k++ {
		j := cols[k]
		v[j] += d[j] - mind
	}
	return finalJ
}

// caDense augments remaining free rows
func caDense(n int, cost [][]float64, nFreeRows int, freeRows, x, y []int, v []float64) error {
	pred := make([]int, n)
	for _, freeI := range freeRows[:nFreeRows] {
		i := -1
		k := 0
		j := findPathDense(n, cost, freeI, y, v, pred)
		if j < 0 || j >= n {
			return errors.Errorf("augmenting path column %d is out of range [0, %d)", j, n)
		}
		for i != freeI {
			i = pred[j]
			y[j] = i
			j, x[i] = x[i], j
			k++
			if k >= n {
				return errors.New("augmenting path is longer than matrix size")
			}
		}
	}
	return nil
}

// execLapjv solves rectangular problem by extending cost into (rows+cols) square matrix.
// Leaving a row and a column unmatched costs costLimit in total, so pairs above
// costLimit never get assigned. Unassigned entries of rowsol/colsol are -1.
func execLapjv(cost [][]float64, costLimit float64) (rowsol, colsol []int, err error) {
	nRows := len(cost)
	nCols := len(cost[0])
	n := nRows + nCols

	extended := make([][]float64, n)
	for i := range extended {
		extended[i] = make([]float64, n)
		for j := range extended[i] {
			switch {
			case i < nRows && j < nCols:
				extended[i][j] = cost[i][j]
			case i >= nRows && j >= nCols:
				extended[i][j] = 0
			default:
				extended[i][j] = costLimit / 2.0
			}
		}
	}

	x := make([]int, n)
	y := make([]int, n)
	ret, err := lapjvInternal(n, extended, x, y)
	if err != nil {
		return nil, nil, errors.Wrap(err, "lapjv failed")
	}
	if ret != 0 {
		return nil, nil, errors.Errorf("lapjv left %d free rows", ret)
	}

	rowsol = make([]int, nRows)
	colsol = make([]int, nCols)
	for i := 0; i < nRows; i++ {
		rowsol[i] = x[i]
		if x[i] >= nCols {
			rowsol[i] = -1
		}
	}
	for j := 0; j < nCols; j++ {
		colsol[j] = y[j]
		if y[j] >= nRows {
			colsol[j] = -1
		}
	}
	return rowsol, colsol, nil
}
