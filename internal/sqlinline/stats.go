package sqlinline

const QIncrementAnalytics = `--sql 4d377cf2-5001-49f1-ab5f-a7baa835cba6
insert into analytics_daily (day, signups, module_runs, upgrades, ultimate_sales, created_at, updated_at)
values ($1::date, $2::int, coalesce($3::jsonb, '{}'::jsonb), $4::int, $5::int, now(), now())
on conflict (day) do update set
    signups = analytics_daily.signups + excluded.signups,
    module_runs = (
        select coalesce(jsonb_object_agg(k, to_jsonb(coalesce((analytics_daily.module_runs->>k)::int, 0) + coalesce((excluded.module_runs->>k)::int, 0))), '{}'::jsonb)
        from (
            select jsonb_object_keys(analytics_daily.module_runs) as k
            union
            select jsonb_object_keys(excluded.module_runs)
        ) keys
    ),
    upgrades = analytics_daily.upgrades + excluded.upgrades,
    ultimate_sales = analytics_daily.ultimate_sales + excluded.ultimate_sales,
    updated_at = now();
`

const QStatsSummary = `--sql d1c8f6c1-a724-46b7-a494-36e6ed0b44f7
select
    (select count(*) from users) as total_users,
    (select count(*) from entitlements where package <> 'free' and expiry > now()) as active_paid,
    coalesce(sum(signups), 0) as signups,
    coalesce(sum(upgrades), 0) as upgrades,
    coalesce(sum(ultimate_sales), 0) as ultimate_sales,
    coalesce((
        select jsonb_object_agg(k, total)
        from (
            select key as k, sum(value::int) as total
            from analytics_daily, jsonb_each_text(module_runs)
            group by key
        ) runs
    ), '{}'::jsonb) as module_runs
from analytics_daily;
`
