// Package server wraps http.Server with graceful shutdown, production timeouts
// and an errgroup-friendly Run method.
//
//	srv, err := server.NewFromConfig(cfg.Server, server.WithLogger(log))
//	if err != nil {
//		return err
//	}
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(srv.Run(ctx, router))
//	return g.Wait()
//
// Run returns nil when the context is cancelled and the server shut down
// within ShutdownTimeout.
package server
