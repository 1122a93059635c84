// Package server runs an http.Server until its context ends, then drains
// in-flight requests.
//
//	srv := server.New(router, server.WithHost(":8080"), server.WithH2C())
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
