// Package fedtls builds the TLS contexts of a federation server, for inbound
// and outbound connections.
//
//	Peer ----> fedtls.Context (server)           inbound, fixed policy
//	Server ----> ClientCreatorFactory ----> Peer outbound, SNI, no verification
//	              (one ClientConnectionCreator per connection attempt)
//
// [BuildContext] loads the certificate chain, the private key (unless TLS is
// administratively disabled) and DH parameters from a [Config], and applies
// the process wide policy: SSLv2 and SSLv3 off, ephemeral ECDH on
// [DefaultCurveName], and the [CipherList] cipher string. Missing or invalid
// files are fatal. A curve that cannot be selected is logged and the context
// is built without it.
//
//	ctx, err := fedtls.BuildContext(cfg)
//	if err != nil {
//	        // ...
//	}
//	ln, err := ctx.NewListener(inner)
//
// Outbound connections don't verify the peer's certificate at all, whatever
// it is. Trust between
// federation peers is established by signing keys, above the TLS layer. The
// peer's host name is still sent with SNI, IDNA encoded, so that it can pick
// the right virtual host.
//
//	factory, err := fedtls.NewClientCreatorFactory(cfg)
//	if err != nil {
//	        // ...
//	}
//	creator, err := factory.Creator("matrix.example.org")
//	if err != nil {
//	        // ...
//	}
//	session := creator.ClientConnectionForTLS(conn)
//	if err := session.HandshakeContext(ctx); err != nil {
//	        // ...
//	}
//
// [Dialer] and [Transport] wrap these steps for plain connections and HTTP
// requests.
//
// The example directory has working client and server examples.
package fedtls
