// Package lib provides a Go SDK for the ptmflow order API.
//
// This package allows applications to create and control analysis orders and
// to follow their progress without shelling out to the ptmflow CLI binary.
//
// # Quick Start
//
// Create a client pointed at a ptmflow server and drive an order through its
// lifecycle:
//
//	client, err := lib.New(lib.Config{ServerURL: "http://localhost:8080"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	order, _ := client.CreateOrder(ctx, lib.CreateOrderOpts{
//	    Code:        "ptm-2026-001",
//	    ProjectName: "Phospho time course",
//	})
//	client.StartOrder(ctx, order.Code)
//
// # Following Progress
//
// [Client.Watch] merges the persisted progress log with the live SSE stream
// into one de-duplicated timeline and keeps it correct across disconnects and
// reconnects:
//
//	watcher, _ := client.Watch(ctx, "ptm-2026-001", lib.WatchOptions{})
//	defer watcher.Close()
//	for update := range watcher.Updates() {
//	    fmt.Printf("%5.1f%% %s\n", update.Order.ProgressPct, update.Current.Event.Message)
//	}
//
// The updates channel closes when the order reaches a terminal status. For
// raw live events without history merging use [Client.Subscribe].
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: order does not exist.
//   - [ErrAlreadyExists]: an order with the same code already exists.
//   - [ErrNotValid]: invalid input or operation (e.g. cancelling a pending order).
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines.
package lib
