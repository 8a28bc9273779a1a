package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"nestedces"
)

// This driver solves a batch of independent CES markets end to end: it
// loads the per-market layer definitions and input prices from CSV,
// solves the aggregate price for every market, allocates a uniform budget
// back across the inputs, and writes both results to CSV.

func main() {
	// expect 3 arguments: layer CSV, price CSV, budget (output dir optional)
	if len(os.Args) < 4 {
		fmt.Println("Usage: cessolve <layers.csv> <prices.csv> <budget> [outdir]")
		return
	}

	layersPath := os.Args[1]
	pricesPath := os.Args[2]

	budget, err := strconv.ParseFloat(os.Args[3], 64)
	if err != nil {
		panic(fmt.Errorf("parse budget %q: %w", os.Args[3], err))
	}

	outDir := "."
	if len(os.Args) > 4 {
		outDir = os.Args[4]
	}

	// 1. Load the stacked layer, one market per row
	stack, err := nestedces.LoadStackedLayerCSV(layersPath)
	if err != nil {
		panic(err)
	}
	fmt.Println("Loaded", stack.Markets(), "markets from", layersPath)
	stack.PrintLayers()

	// 2. Load input prices, one market per column
	pIn, marketNames, err := nestedces.LoadMatrixCSV(pricesPath)
	if err != nil {
		panic(err)
	}
	rows, cols := pIn.Dims()
	fmt.Println("Loaded price matrix with", rows, "inputs and", cols, "markets:", marketNames)

	// 3. Solve aggregate prices
	pOut, err := stack.SolvePrice(pIn)
	if err != nil {
		panic(err)
	}
	nestedces.PrintSolution("Aggregate Prices", pOut, marketNames)

	// 4. Broadcast the budget to every market and solve the allocation
	nOut, nMarkets := pOut.Dims()
	bData := make([]float64, nOut*nMarkets)
	for i := range bData {
		bData[i] = budget
	}
	b := mat.NewDense(nOut, nMarkets, bData)

	yIn, err := stack.SolveRevenue(b, pIn, pOut)
	if err != nil {
		panic(err)
	}
	nestedces.PrintSolution("Input Allocations", yIn, marketNames)

	// 5. Budget-balance check per market (holds when weights sum to 1)
	for j := 0; j < nMarkets; j++ {
		total := floats.Sum(mat.Col(nil, j, yIn))
		fmt.Printf("market %d: allocated %.6f of %.6f\n", j, total, budget)
	}

	// 6. Write results to CSV
	pricePath := filepath.Join(outDir, "prices_out.csv")
	if err := nestedces.WriteMatrixCSV(pricePath, pOut, nil, marketNames); err != nil {
		panic(err)
	}
	fmt.Println("Aggregate prices written to", pricePath)

	allocPath := filepath.Join(outDir, "allocations.csv")
	if err := nestedces.WriteMatrixCSV(allocPath, yIn, nil, marketNames); err != nil {
		panic(err)
	}
	fmt.Println("Allocations written to", allocPath)
}
