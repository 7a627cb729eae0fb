// Command forecastctl computes, snapshots and migrates finora forecasts from
// the shell.
package main

func main() {
	Execute()
}
