// Package idgen 实现按 namespace 划分的分布式唯一 ID 生成。
//
// 每个 namespace 在外部存储中有一个持久化计数器。Generator 句柄一次向计数器
// 预留一段连续整数（租约），之后在本地发放，耗尽时才再次访问存储。预留是
// 存储端的单次原子操作，因此任意多个进程、任意多个句柄之间发放的 ID 互不重复，
// 进程重启后计数器从上次的位置继续。
//
// 组件：
//   - Store：计数器存储，驱动有 memory、redis、etcd 以及基于 GORM 的 mysql、postgres、sqlite
//   - Registry：缓存 namespace 的共享配置，首次查找时在存储中创建计数器
//   - Generator：持有租约的句柄，GenerateID 返回编码后的字符串
//   - Encoder：hex、decimal、base62 编码，可选加 "<namespace>/" 前缀
//
// 基本使用：
//
//	store, err := idgen.NewStore(ctx, &idgen.StoreConfig{Driver: idgen.DriverRedis},
//		idgen.Backends{Redis: redisConn}, idgen.WithLogger(logger))
//	registry, err := idgen.NewRegistry(store, &idgen.Config{BlockSize: 100})
//	gen, err := registry.Generator(ctx, "orders")
//	id, err := gen.GenerateID(ctx)
//	if idgen.IsRetryable(err) {
//		// 存储暂时不可用，没有消耗任何值，可以稍后重试
//	}
//
// 唯一性只在 namespace 内保证。不同 namespace 的原始整数可能相同，需要全局可区分
// 的字符串时开启 Qualify。
package idgen
