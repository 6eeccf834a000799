// Package logmgr implements the logical-log engine: many append-only byte
// streams ("logical logs") multiplexed over one block container ("physical
// log").
//
// # Object hierarchy
//
//	Registry            one container-manager connection
//	  ManagerHandle     reference on the connection
//	  physicalLog       one open container
//	    PhysicalLogHandle
//	    LogicalLog      one container stream
//	      ReadStream    independent read cursor
//
// Every level is reference counted and closed explicitly. The connection
// lives while a manager handle or a physical log exists; a container stays
// open while a physical log handle or a logical log exists; a container
// stream stays open while its logical log or one of its read streams is
// open. Registry and physical log mutations take the registry lock before
// the physical log lock, close paths included.
//
// # Writing
//
//	l, _ := plh.CreateLogicalLog(ctx, id, "orders", logmgr.LogOptions{})
//	_ = l.Append(ctx, payload)     // buffered, flushed when the block fills
//	_ = l.FlushWithBarrier(ctx)    // seal and write a record
//	_ = l.TruncateHead(off)        // returns immediately
//	_ = l.TruncateTail(ctx, off)   // writes a barrier record at off
//
// # Reading
//
// Reads pull records from the container, one record (or a budgeted run of
// records) at a time, and start a background read of the following record
// when read-ahead is enabled. A read that reaches bytes still in the write
// buffer flushes first.
//
//	_ = l.SeekTo(0)
//	data, _ := io.ReadAll(l.Reader(ctx))
package logmgr
